package server

import (
	"context"

	"citylayers/internal/conf"
	"citylayers/internal/metrics"
	"citylayers/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer, NewSessionSweeper, metrics.NewRegistry)

const (
	OperationChat    = "/citylayers.v1.CityLayers/Chat"
	OperationMapData = "/citylayers.v1.CityLayers/MapData"
	OperationStatus  = "/citylayers.v1.CityLayers/Status"
)

// 编码相关逻辑已拆分到 encoders.go

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, svc *service.CityLayersService, reg *prometheus.Registry, logger log.Logger) *http.Server {
	mws := []middleware.Middleware{
		recovery.Recovery(),
		logging.Server(logger),
	}
	if c.Http.RateLimit > 0 {
		mws = append(mws, limiterMiddleware(newClientLimiter(c.Http.RateLimit)))
	}
	var opts = []http.ServerOption{
		http.Middleware(mws...),
		http.ResponseEncoder(responseEncoder),
		http.RequestDecoder(http.DefaultRequestDecoder),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout > 0 {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)
	srv.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	registerCityLayersHTTPServer(srv, svc)
	return srv
}

func registerCityLayersHTTPServer(s *http.Server, svc *service.CityLayersService) {
	r := s.Route("/")
	r.POST("/chat", handler(OperationChat, true, svc.Chat))
	r.GET("/map-data", handler(OperationMapData, false, svc.MapData))
	r.GET("/status", handler(OperationStatus, false, svc.Status))
}

// handler 绑定请求、执行中间件链并按 ResponseEncoder 输出结果。
func handler[Req, Reply any](operation string, body bool, call func(context.Context, *Req) (*Reply, error)) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in Req
		bind := ctx.BindQuery
		if body {
			bind = ctx.Bind
		}
		if err := bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req any) (any, error) {
			return call(ctx, req.(*Req))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}
