package biz

import (
	"context"
)

// GraphRepo 图数据库读路径，行内别名对应的值为标量或属性 map。
type GraphRepo interface {
	Schema(ctx context.Context) (string, error)
	Query(ctx context.Context, cypher string) ([]Row, error)
}

// LanguageModel 语言模型，返回值可能是字符串、{type,text} 包装或内容块列表。
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (any, error)
}

// ReverseGeocoder 逆地理编码服务。
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// AddressCache 以四舍五入坐标为键的地址缓存。
type AddressCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, address string)
}

// SourceResult 外部数据源返回结构，Data 的具体类型由各数据源约定。
type SourceResult struct {
	OK    bool
	Data  any
	Error string
}

// Area 外部数据源的查询范围：地图边界或单点。
type Area struct {
	Bounds *MapBounds
	Point  *Point
}

// Center 返回范围中心点。
func (a Area) Center() (Point, bool) {
	if a.Point != nil {
		return *a.Point, true
	}
	if a.Bounds != nil {
		return a.Bounds.Center(), true
	}
	return Point{}, false
}

// ExternalSource 天气、交通、植被等辅助数据源。
type ExternalSource interface {
	Name() string
	Fetch(ctx context.Context, area Area) SourceResult
}

// SessionRepo 会话存储。
type SessionRepo interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	DeleteExpired(ctx context.Context) (int, error)
}
