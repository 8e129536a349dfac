package data

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"citylayers/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const (
	defaultStopRadius = 1000
	maxStopRadius     = 3000
	overpassAttempts  = 2
)

const overpassStopsQuery = `[out:json][timeout:25];
(
  node["public_transport"="stop_position"](around:%[1]d,%[2]f,%[3]f);
  node["highway"="bus_stop"](around:%[1]d,%[2]f,%[3]f);
  node["railway"="tram_stop"](around:%[1]d,%[2]f,%[3]f);
  node["railway"="station"](around:%[1]d,%[2]f,%[3]f);
  node["railway"="halt"](around:%[1]d,%[2]f,%[3]f);
);
out body;`

// transportSource Overpass API 查询附近公共交通站点。
type transportSource struct {
	conn    *khttp.Client
	backoff time.Duration
	log     *log.Helper
}

type overpassReply struct {
	Elements []struct {
		ID   int64             `json:"id"`
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func (s *transportSource) Name() string { return biz.SourceTransport }

func (s *transportSource) Fetch(ctx context.Context, area biz.Area) biz.SourceResult {
	center, ok := area.Center()
	if !ok {
		return biz.SourceResult{Error: "no location given"}
	}
	query := fmt.Sprintf(overpassStopsQuery, searchRadius(area), center.Lat, center.Lon)
	var reply overpassReply
	if err := queryOverpass(ctx, s.conn, s.backoff, s.log, query, &reply); err != nil {
		return biz.SourceResult{Error: err.Error()}
	}

	stations := make([]biz.TransitStation, 0, len(reply.Elements))
	for _, el := range reply.Elements {
		name := el.Tags["name"]
		if name == "" {
			name = "Unnamed Stop"
		}
		operator := el.Tags["operator"]
		if operator == "" {
			operator = "Unknown"
		}
		stations = append(stations, biz.TransitStation{
			ID:       el.ID,
			Name:     name,
			Type:     transportType(el.Tags),
			Operator: operator,
			Network:  el.Tags["network"],
			Lat:      el.Lat,
			Lon:      el.Lon,
		})
	}
	return biz.SourceResult{OK: true, Data: stations}
}

// queryOverpass 以 GET 发送 Overpass QL，网关超时时按 backoff 递增重试。
func queryOverpass(ctx context.Context, conn *khttp.Client, backoff time.Duration, logger *log.Helper, query string, reply any) error {
	path := "/api/interpreter?data=" + url.QueryEscape(query)
	var err error
	for attempt := range overpassAttempts {
		if err = conn.Invoke(ctx, "GET", path, nil, reply); err == nil {
			return nil
		}
		// 只对网关超时重试
		if statusCode(err) != 504 || attempt == overpassAttempts-1 {
			break
		}
		wait := time.Duration(attempt+1) * backoff
		logger.WithContext(ctx).Warnf("overpass timeout, retrying in %s", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("overpass: %w", err)
}

// searchRadius 地图范围取半对角线，单点取默认半径，上限 3km。
func searchRadius(area biz.Area) int {
	if area.Point != nil || area.Bounds == nil {
		return defaultStopRadius
	}
	b := area.Bounds
	r := int(haversine(b.South, b.West, b.North, b.East) / 2)
	return max(min(r, maxStopRadius), 100)
}

// haversine 两点间球面距离，单位米。
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

func transportType(tags map[string]string) string {
	if rail, ok := tags["railway"]; ok {
		switch rail {
		case "station", "halt":
			return "train"
		case "tram_stop":
			return "tram"
		}
		return "transit"
	}
	if tags["highway"] == "bus_stop" {
		return "bus"
	}
	if _, ok := tags["public_transport"]; ok {
		switch {
		case tags["tram"] == "yes":
			return "tram"
		case tags["subway"] == "yes":
			return "subway"
		case tags["bus"] != "no":
			return "bus"
		}
	}
	return "transit"
}
