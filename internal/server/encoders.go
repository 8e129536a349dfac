package server

import (
	"encoding/json"

	"citylayers/internal/service"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// geoJSON structures
type geoJSONFeature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   map[string]any `json:"geometry"`
}

type geoJSONFC struct {
	Type     string           `json:"type"`
	Features []geoJSONFeature `json:"features"`
}

// responseEncoder ?format=geojson 时将地图数据输出为 FeatureCollection，其余走默认编码。
func responseEncoder(w http.ResponseWriter, r *http.Request, v any) error {
	if r != nil && r.URL.Query().Get("format") == "geojson" {
		if reply, ok := v.(*service.MapDataReply); ok {
			return encodeGeoJSON(w, r, reply)
		}
	}
	return http.DefaultResponseEncoder(w, r, v)
}

func toFeatureCollection(reply *service.MapDataReply) geoJSONFC {
	fc := geoJSONFC{Type: "FeatureCollection", Features: make([]geoJSONFeature, 0, len(reply.Features))}
	for _, f := range reply.Features {
		props := map[string]any{
			"place_id": f.PlaceID,
			"location": f.Location,
			"category": f.Category,
		}
		if f.Address != "" {
			props["address"] = f.Address
		}
		if len(f.Categories) > 0 {
			props["categories"] = f.Categories
		}
		if f.Grade != nil {
			props["grade"] = *f.Grade
		}
		if len(f.Comments) > 0 {
			props["comments"] = f.Comments
		}
		fc.Features = append(fc.Features, geoJSONFeature{
			Type:       "Feature",
			Properties: props,
			// GeoJSON 坐标顺序为 经度, 纬度
			Geometry: map[string]any{"type": "Point", "coordinates": []float64{f.Lon, f.Lat}},
		})
	}
	return fc
}

func encodeGeoJSON(w http.ResponseWriter, r *http.Request, reply *service.MapDataReply) error {
	fc := toFeatureCollection(reply)
	if cb := r.URL.Query().Get("json_callback"); cb != "" {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		b, err := json.Marshal(fc)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(cb + "(")); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		_, err = w.Write([]byte(")"))
		return err
	}
	w.Header().Set("Content-Type", "application/geo+json; charset=utf-8")
	return json.NewEncoder(w).Encode(fc)
}
