package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"citylayers/internal/biz"

	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

const (
	treeLayer    = "ogdwien:BAUMKATOGD"
	maxTrees     = 500
	pointPadding = 0.0025 // 单点查询时约 250 米的包围盒
)

// vegetationSource 维也纳开放数据树木登记 WFS 服务。
type vegetationSource struct {
	conn *khttp.Client
}

type wfsReply struct {
	Features []struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func (s *vegetationSource) Name() string { return biz.SourceVegetation }

func (s *vegetationSource) Fetch(ctx context.Context, area biz.Area) biz.SourceResult {
	b, ok := treeBounds(area)
	if !ok {
		return biz.SourceResult{Error: "no location given"}
	}
	path := fmt.Sprintf("/daten/geo?service=WFS&request=GetFeature&version=1.1.0&typeName=%s&srsName=EPSG:4326&outputFormat=json&bbox=%f,%f,%f,%f,EPSG:4326",
		treeLayer, b.West, b.South, b.East, b.North)
	var reply wfsReply
	if err := s.conn.Invoke(ctx, "GET", path, nil, &reply); err != nil {
		return biz.SourceResult{Error: fmt.Sprintf("vegetation wfs: %v", err)}
	}
	trees := make([]biz.Tree, 0, min(len(reply.Features), maxTrees))
	for _, f := range reply.Features {
		if len(trees) == maxTrees {
			break
		}
		// 非点要素的坐标是嵌套数组，只跳过该要素
		if f.Geometry.Type != "Point" {
			continue
		}
		var coords []float64
		if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil || len(coords) < 2 {
			continue
		}
		p := f.Properties
		species := propString(p, "GATTUNG_ART")
		if species == "" {
			species = "Unknown"
		}
		trees = append(trees, biz.Tree{
			ID:                 propString(p, "BAUM_ID"),
			Species:            species,
			Genus:              propString(p, "GATTUNG"),
			Height:             propFloat(p, "BAUMHOEHE"),
			CrownDiameter:      propFloat(p, "KRONENDURCHMESSER"),
			TrunkCircumference: propFloat(p, "STAMMUMFANG"),
			PlantingYear:       propString(p, "PFLANZJAHR"),
			Lat:                coords[1],
			Lon:                coords[0],
		})
	}
	return biz.SourceResult{OK: true, Data: trees}
}

func treeBounds(area biz.Area) (biz.MapBounds, bool) {
	if area.Point != nil {
		p := area.Point
		return biz.MapBounds{North: p.Lat + pointPadding, South: p.Lat - pointPadding, East: p.Lon + pointPadding, West: p.Lon - pointPadding}, true
	}
	if area.Bounds != nil {
		return *area.Bounds, true
	}
	return biz.MapBounds{}, false
}

func propString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func propFloat(p map[string]any, key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}
