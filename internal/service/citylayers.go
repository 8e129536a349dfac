package service

import (
	"context"
	nethttp "net/http"
	"strings"
	"time"

	"citylayers/internal/biz"
	"citylayers/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

const (
	// SessionHeader 会话 id 请求/响应头，浏览器客户端走同名 cookie。
	SessionHeader = "X-Session-ID"
	SessionCookie = "sid"
)

// ChatRequest POST /chat
type ChatRequest struct {
	Message        string         `json:"message"`
	MapBounds      *biz.MapBounds `json:"map_bounds,omitempty"`
	CategoryFilter string         `json:"category_filter,omitempty"`
	ClickedPoint   *biz.Point     `json:"clicked_point,omitempty"`
	DataSources    []string       `json:"data_sources,omitempty"`
}

// ChatReply .
type ChatReply struct {
	OK         bool     `json:"ok"`
	Answer     string   `json:"answer"`
	Query      string   `json:"query,omitempty"`
	PlaceCount int      `json:"place_count"`
	Sources    []string `json:"sources"`
	SessionID  string   `json:"session_id"`
}

// MapDataRequest GET /map-data
type MapDataRequest struct{}

// MapDataReply .
type MapDataReply struct {
	OK       bool             `json:"ok"`
	Features []biz.MapFeature `json:"features"`
}

// StatusRequest GET /status
type StatusRequest struct{}

// StatusReply .
type StatusReply struct {
	Version     string `json:"version"`
	DbStatus    string `json:"db_status"`
	GraphStatus string `json:"graph_status"`
	Uptime      string `json:"uptime"`
}

// CityLayersService 实现 HTTP 入口，调用 biz 层。
type CityLayersService struct {
	log  *log.Helper
	chat *biz.ChatUsecase
	data *data.Data
}

var serviceStartTime = time.Now()

// Version 由 main 在构建时注入。
var Version = "dev"

func NewCityLayersService(logger log.Logger, chat *biz.ChatUsecase, data *data.Data) *CityLayersService {
	return &CityLayersService{log: log.NewHelper(logger), chat: chat, data: data}
}

func (s *CityLayersService) Chat(ctx context.Context, req *ChatRequest) (*ChatReply, error) {
	category, err := biz.ParseCategory(req.CategoryFilter)
	if err != nil {
		return nil, err
	}
	if p := req.ClickedPoint; p != nil && !biz.ValidCoordinate(p.Lat, p.Lon) {
		return nil, biz.ErrInvalidCoordinate
	}
	sess, err := s.chat.Session(ctx, sessionID(ctx))
	if err != nil {
		return nil, err
	}
	setSessionID(ctx, sess.ID)
	s.log.WithContext(ctx).Infof("Chat session=%s category=%s", sess.ID, req.CategoryFilter)

	res, err := s.chat.Ask(ctx, sess, biz.AskParams{
		Question:       req.Message,
		Bounds:         req.MapBounds,
		CategoryFilter: category,
		ClickedPoint:   req.ClickedPoint,
		Sources:        enabledSources(req.DataSources),
	})
	if err != nil {
		return nil, err
	}
	return &ChatReply{
		OK:         true,
		Answer:     res.Answer,
		Query:      res.Query,
		PlaceCount: len(res.Places),
		Sources:    res.Context.Contributed(),
		SessionID:  sess.ID,
	}, nil
}

func (s *CityLayersService) MapData(ctx context.Context, _ *MapDataRequest) (*MapDataReply, error) {
	sess, err := s.chat.Session(ctx, sessionID(ctx))
	if err != nil {
		return nil, err
	}
	setSessionID(ctx, sess.ID)
	return &MapDataReply{OK: true, Features: s.chat.MapFeatures(sess)}, nil
}

func (s *CityLayersService) Status(ctx context.Context, _ *StatusRequest) (*StatusReply, error) {
	uptime := time.Since(serviceStartTime).Round(time.Second).String()
	dbStatus, graphStatus := "unknown", "unknown"
	if s.data != nil && s.data.SQLDB() != nil {
		if err := s.data.SQLDB().PingContext(ctx); err == nil {
			dbStatus = "ok"
		} else {
			dbStatus = "unavailable"
		}
	}
	if s.data != nil && s.data.Graph() != nil {
		if err := s.data.Graph().VerifyConnectivity(ctx); err == nil {
			graphStatus = "ok"
		} else {
			graphStatus = "unavailable"
		}
	}
	return &StatusReply{Version: Version, DbStatus: dbStatus, GraphStatus: graphStatus, Uptime: uptime}, nil
}

// sessionID 依次取请求头、cookie。
func sessionID(ctx context.Context) string {
	if tr, ok := transport.FromServerContext(ctx); ok {
		if id := strings.TrimSpace(tr.RequestHeader().Get(SessionHeader)); id != "" {
			return id
		}
	}
	if r, ok := http.RequestFromServerContext(ctx); ok {
		if c, err := r.Cookie(SessionCookie); err == nil {
			return c.Value
		}
	}
	return ""
}

func setSessionID(ctx context.Context, id string) {
	tr, ok := transport.FromServerContext(ctx)
	if !ok {
		return
	}
	tr.ReplyHeader().Set(SessionHeader, id)
	cookie := &nethttp.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: nethttp.SameSiteLaxMode,
	}
	tr.ReplyHeader().Add("Set-Cookie", cookie.String())
}

func enabledSources(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out[n] = true
		}
	}
	return out
}
