package data

import (
	"time"

	"citylayers/internal/biz"
	"citylayers/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// NewExternalSources 创建未被禁用的外部数据源。
func NewExternalSources(c *conf.Data, logger log.Logger) (biz.ExternalSources, func(), error) {
	var (
		sources biz.ExternalSources
		conns   []*khttp.Client
	)
	cleanup := func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
	open := func(e *conf.Data_Endpoint) (*khttp.Client, error) {
		conn, err := newHTTPClient(e.Endpoint, e.Timeout.AsDuration())
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
		return conn, nil
	}

	if !c.Weather.Disabled {
		conn, err := open(c.Weather)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sources = append(sources, &weatherSource{conn: conn, now: time.Now})
	}
	if !c.Transport.Disabled {
		conn, err := open(c.Transport)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sources = append(sources, &transportSource{conn: conn, backoff: 2 * time.Second, log: log.NewHelper(logger)})
	}
	if !c.Vegetation.Disabled {
		conn, err := open(c.Vegetation)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sources = append(sources, &vegetationSource{conn: conn})
	}
	if !c.Amenities.Disabled {
		conn, err := open(c.Amenities)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		sources = append(sources, &amenitySource{conn: conn, backoff: 2 * time.Second, log: log.NewHelper(logger)})
	}
	return sources, cleanup, nil
}
