package biz

import (
	"time"

	"github.com/google/uuid"
)

// MapBounds 地图可视范围。
type MapBounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Center .
func (b MapBounds) Center() Point {
	return Point{Lat: (b.North + b.South) / 2, Lon: (b.East + b.West) / 2}
}

// Point 单个坐标点。
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ValidCoordinate 判断坐标是否在合法范围内。
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ChatTurn 一轮问答。
type ChatTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QueryContext 单次请求的查询上下文。CategoryFilter 为 0 表示 "all"。
type QueryContext struct {
	Question       string
	History        []ChatTurn
	Bounds         *MapBounds
	CategoryFilter Category
	ClickedPoint   *Point
	Sources        map[string]bool // 启用的外部数据源
}

// recentHistory 返回最近 n 轮问答。
func (qc *QueryContext) recentHistory(n int) []ChatTurn {
	if n <= 0 || len(qc.History) == 0 {
		return nil
	}
	if len(qc.History) <= n {
		return qc.History
	}
	return qc.History[len(qc.History)-n:]
}

// maxStoredTurns 会话内保存的问答轮数上限。
const maxStoredTurns = 10

// Session 显式的会话上下文，替代全局会话表。
type Session struct {
	ID         string
	History    []ChatTurn
	LastPlaces []*PlaceRecord
	Addresses  AddressCache
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastQuery  string
}

// NewSession 首次使用时创建。
func NewSession(ttl time.Duration, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired .
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Commit 请求结束时整体替换会话状态。
func (s *Session) Commit(turn ChatTurn, query string, places []*PlaceRecord, ttl time.Duration, now time.Time) {
	history := append(append([]ChatTurn(nil), s.History...), turn)
	if len(history) > maxStoredTurns {
		history = history[len(history)-maxStoredTurns:]
	}
	s.History = history
	s.LastPlaces = places
	s.LastQuery = query
	s.ExpiresAt = now.Add(ttl)
}
