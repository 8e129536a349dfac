package data

import (
	"context"
	"fmt"
	"time"

	"citylayers/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const maxAmenities = 200

// 有地图范围时按 bbox (南,西,北,东) 查询，否则按点周边半径查询。
const overpassAmenityQuery = `[out:json][timeout:25];
(
  node["amenity"](%[1]s);
  way["amenity"](%[1]s);
);
out center %[2]d;`

// amenitySource Overpass API 查询周边设施（餐饮、医疗、学校等）。
type amenitySource struct {
	conn    *khttp.Client
	backoff time.Duration
	log     *log.Helper
}

type amenityReply struct {
	Elements []struct {
		ID     int64   `json:"id"`
		Type   string  `json:"type"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
		Center *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"center"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func (s *amenitySource) Name() string { return biz.SourceAmenities }

func (s *amenitySource) Fetch(ctx context.Context, area biz.Area) biz.SourceResult {
	filter, ok := amenityArea(area)
	if !ok {
		return biz.SourceResult{Error: "no location given"}
	}
	var reply amenityReply
	if err := queryOverpass(ctx, s.conn, s.backoff, s.log, fmt.Sprintf(overpassAmenityQuery, filter, maxAmenities), &reply); err != nil {
		return biz.SourceResult{Error: err.Error()}
	}
	out := make([]biz.Amenity, 0, min(len(reply.Elements), maxAmenities))
	for _, el := range reply.Elements {
		if len(out) == maxAmenities {
			break
		}
		kind := el.Tags["amenity"]
		if kind == "" {
			continue
		}
		lat, lon := el.Lat, el.Lon
		if el.Type != "node" {
			if el.Center == nil {
				continue
			}
			lat, lon = el.Center.Lat, el.Center.Lon
		}
		name := el.Tags["name"]
		if name == "" {
			name = "Unnamed"
		}
		out = append(out, biz.Amenity{ID: el.ID, Kind: kind, Name: name, Lat: lat, Lon: lon})
	}
	return biz.SourceResult{OK: true, Data: out}
}

func amenityArea(area biz.Area) (string, bool) {
	if area.Point == nil && area.Bounds != nil {
		b := area.Bounds
		return fmt.Sprintf("%f,%f,%f,%f", b.South, b.West, b.North, b.East), true
	}
	c, ok := area.Center()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("around:%d,%f,%f", searchRadius(area), c.Lat, c.Lon), true
}
