package biz

import (
	"context"
	"fmt"
	"math"
	"time"

	"citylayers/internal/conf"
	"citylayers/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// 逆地理编码默认参数。
const (
	DefaultMaxLocations   = 50
	DefaultGeocodeWorkers = 10
	DefaultGeocodeTimeout = 3 * time.Second
)

// CoordKey 将坐标四舍五入到 4 位小数（约 11 米）作为缓存键。
func CoordKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", round4(lat), round4(lon))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// AddressEnricher 为地点补充精确街道地址。
type AddressEnricher struct {
	geocoder     ReverseGeocoder
	maxLocations int
	workers      int
	timeout      time.Duration
	log          *log.Helper
}

// NewAddressEnricher .
func NewAddressEnricher(geocoder ReverseGeocoder, p *conf.Pipeline, logger log.Logger) *AddressEnricher {
	e := &AddressEnricher{
		geocoder:     geocoder,
		maxLocations: p.MaxGeocode,
		workers:      p.GeocodeWorkers,
		timeout:      p.GeocodeTimeout.AsDuration(),
		log:          log.NewHelper(logger),
	}
	if e.maxLocations <= 0 {
		e.maxLocations = DefaultMaxLocations
	}
	if e.workers <= 0 {
		e.workers = DefaultGeocodeWorkers
	}
	if e.timeout <= 0 {
		e.timeout = DefaultGeocodeTimeout
	}
	return e
}

type geoTarget struct {
	key      string
	lat, lon float64
}

// Enrich 批量逆地理编码并写入 PlaceRecord.Address，返回获得地址的地点数。
// 单个坐标超时、限流或无结果只影响该地点，回退为图中已有的名称。
func (e *AddressEnricher) Enrich(ctx context.Context, places []*PlaceRecord, cache AddressCache) int {
	if len(places) == 0 {
		return 0
	}
	resolved := make(map[string]string)
	var pending []geoTarget
	seen := make(map[string]bool)
	for _, p := range places {
		if !p.HasCoordinates {
			continue
		}
		key := CoordKey(p.Latitude, p.Longitude)
		if seen[key] {
			continue
		}
		seen[key] = true
		if cache != nil {
			if addr, ok := cache.Get(ctx, key); ok && addr != "" {
				resolved[key] = addr
				metrics.GeocodeLookups.WithLabelValues("cache_hit").Inc()
				continue
			}
		}
		if len(pending) < e.maxLocations {
			pending = append(pending, geoTarget{key: key, lat: round4(p.Latitude), lon: round4(p.Longitude)})
		}
	}

	// 每个键只派发一次，结果按下标写入互不重叠
	results := make([]string, len(pending))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, t := range pending {
		g.Go(func() error {
			results[i] = e.lookup(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	for i, t := range pending {
		if results[i] == "" {
			continue
		}
		resolved[t.key] = results[i]
		if cache != nil {
			cache.Set(ctx, t.key, results[i])
		}
	}

	n := 0
	for _, p := range places {
		if !p.HasCoordinates {
			continue
		}
		if addr, ok := resolved[CoordKey(p.Latitude, p.Longitude)]; ok {
			p.Address = addr
			n++
		}
	}
	return n
}

func (e *AddressEnricher) lookup(ctx context.Context, t geoTarget) string {
	if !ValidCoordinate(t.lat, t.lon) {
		metrics.GeocodeLookups.WithLabelValues("invalid").Inc()
		return ""
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	addr, err := e.geocoder.ReverseGeocode(cctx, t.lat, t.lon)
	if err != nil || addr == "" {
		metrics.GeocodeLookups.WithLabelValues("failed").Inc()
		e.log.WithContext(ctx).Debugf("reverse geocode %s: %v", t.key, ErrGeocoding.WithCause(err))
		return ""
	}
	metrics.GeocodeLookups.WithLabelValues("resolved").Inc()
	return addr
}
