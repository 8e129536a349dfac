package biz

import (
	"encoding/json"
	"fmt"
	"sort"
)

// 上下文压缩上限：回答提示词有实际的长度上限，这里做有损但具代表性的摘要。
const (
	DefaultMaxContextPlaces = 50
	maxWeatherSamples       = 5
	maxStations             = 20
	maxTopSpecies           = 10
	maxTreeSamples          = 5
	maxPlaceComments        = 3
	maxAmenityKinds         = 10
	maxAmenitySamples       = 10
)

// SourceContext 单个数据源在聚合上下文中的条目。
type SourceContext struct {
	Enabled bool   `json:"enabled"`
	OK      bool   `json:"ok"`
	Count   int    `json:"count"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AggregatedContext 每次请求新建，供回答生成使用，不持久化。
type AggregatedContext struct {
	Sources map[string]*SourceContext `json:"sources"`
	Places  []*PlaceRecord            `json:"-"` // 完整地点列表，用于兜底表格
}

// Contributed 返回产生了可用结果的数据源。
func (ac *AggregatedContext) Contributed() []string {
	var out []string
	for name, s := range ac.Sources {
		if s.Enabled && s.OK && s.Count > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// PromptJSON 以稳定的键序输出上下文，嵌入提示词。
func (ac *AggregatedContext) PromptJSON() string {
	b, err := json.MarshalIndent(ac.Sources, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ContextPlace 进入提示词的地点摘要。
type ContextPlace struct {
	PlaceID    string   `json:"place_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Categories []string `json:"categories"`
	Grade      *float64 `json:"avg_grade,omitempty"`
	Comments   []string `json:"comments,omitempty"`
}

// WeatherSummary .
type WeatherSummary struct {
	AvgTemperature *float64        `json:"avg_temperature,omitempty"`
	MinTemperature *float64        `json:"min_temperature,omitempty"`
	MaxTemperature *float64        `json:"max_temperature,omitempty"`
	AvgWindSpeed   *float64        `json:"avg_wind_speed,omitempty"`
	Current        *CurrentWeather `json:"current,omitempty"`
	Samples        []WeatherRecord `json:"samples"`
}

// TransportSummary .
type TransportSummary struct {
	Stations []TransitStation `json:"stations"`
}

// SpeciesCount .
type SpeciesCount struct {
	Species string `json:"species"`
	Count   int    `json:"count"`
}

// AmenityKindCount .
type AmenityKindCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// AmenitySummary 周边设施按类型计数，附少量样例。
type AmenitySummary struct {
	Total   int                `json:"total"`
	Kinds   []AmenityKindCount `json:"kinds"`
	Samples []Amenity          `json:"samples"`
}

// VegetationSummary .
type VegetationSummary struct {
	Total        int            `json:"total"`
	SpeciesCount int            `json:"species_count"`
	TopSpecies   []SpeciesCount `json:"top_species"`
	Samples      []Tree         `json:"samples"`
}

// BuildContext 合并图查询结果与已启用的外部数据源摘要。
// 失败的数据源标记为未贡献并保留错误信息；所有启用的数据源都失败时返回 ErrNoDataAvailable。
func BuildContext(places *PlaceSet, external map[string]SourceResult, enabled map[string]bool, maxPlaces int) (*AggregatedContext, error) {
	if maxPlaces <= 0 {
		maxPlaces = DefaultMaxContextPlaces
	}
	ac := &AggregatedContext{Sources: make(map[string]*SourceContext), Places: places.Places()}

	cl := &SourceContext{Enabled: enabled[SourceCityLayers] || !hasKey(enabled, SourceCityLayers), OK: true, Count: places.Len()}
	if cl.Enabled {
		cl.Data = summarizePlaces(ac.Places, maxPlaces)
	}
	ac.Sources[SourceCityLayers] = cl

	for _, name := range externalSourceOrder {
		if !enabled[name] {
			continue
		}
		sc := &SourceContext{Enabled: true}
		ac.Sources[name] = sc
		res, ok := external[name]
		if !ok {
			sc.Error = "no result"
			continue
		}
		if !res.OK {
			sc.Error = res.Error
			continue
		}
		data, count, err := summarizeSource(name, res.Data)
		if err != nil {
			sc.Error = err.Error()
			continue
		}
		sc.OK, sc.Data, sc.Count = true, data, count
	}

	if !ac.anySucceeded() {
		return ac, ErrNoDataAvailable
	}
	return ac, nil
}

// anySucceeded 查询成功但结果为空的数据源也算可用，回答阶段据此给出“无结果”。
func (ac *AggregatedContext) anySucceeded() bool {
	for _, s := range ac.Sources {
		if s.Enabled && s.OK {
			return true
		}
	}
	return false
}

func hasKey(m map[string]bool, k string) bool {
	_, ok := m[k]
	return ok
}

func summarizeSource(name string, data any) (any, int, error) {
	switch name {
	case SourceWeather:
		r, ok := data.(*WeatherReport)
		if !ok || r == nil {
			return nil, 0, fmt.Errorf("unexpected weather data %T", data)
		}
		return summarizeWeather(r), len(r.Records), nil
	case SourceTransport:
		st, ok := data.([]TransitStation)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected transport data %T", data)
		}
		return summarizeTransport(st), len(st), nil
	case SourceVegetation:
		trees, ok := data.([]Tree)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected vegetation data %T", data)
		}
		return summarizeVegetation(trees), len(trees), nil
	case SourceAmenities:
		am, ok := data.([]Amenity)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected amenities data %T", data)
		}
		return summarizeAmenities(am), len(am), nil
	}
	return nil, 0, fmt.Errorf("unknown source %q", name)
}

func summarizePlaces(places []*PlaceRecord, limit int) []ContextPlace {
	if len(places) > limit {
		places = places[:limit]
	}
	out := make([]ContextPlace, 0, len(places))
	for _, p := range places {
		cp := ContextPlace{
			PlaceID:   p.PlaceID,
			Name:      p.Location,
			Address:   p.Address,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		}
		if len(p.Categories) == 0 {
			cp.Categories = []string{UncategorizedLabel}
		}
		for _, c := range p.Categories {
			cp.Categories = append(cp.Categories, c.Type)
		}
		if avg, ok := p.AverageGrade(); ok {
			cp.Grade = &avg
		}
		for i, c := range p.Comments {
			if i == maxPlaceComments {
				break
			}
			cp.Comments = append(cp.Comments, c.Text)
		}
		out = append(out, cp)
	}
	return out
}

type runningStat struct {
	sum, min, max float64
	n             int
}

func (s *runningStat) add(v *float64) {
	if v == nil {
		return
	}
	if s.n == 0 || *v < s.min {
		s.min = *v
	}
	if s.n == 0 || *v > s.max {
		s.max = *v
	}
	s.sum += *v
	s.n++
}

func (s *runningStat) avg() *float64 {
	if s.n == 0 {
		return nil
	}
	v := s.sum / float64(s.n)
	return &v
}

func summarizeWeather(r *WeatherReport) WeatherSummary {
	var avg, lo, hi, wind runningStat
	for i := range r.Records {
		rec := &r.Records[i]
		avg.add(rec.TempAvg)
		lo.add(rec.TempMin)
		hi.add(rec.TempMax)
		wind.add(rec.WindSpeed)
	}
	ws := WeatherSummary{AvgTemperature: avg.avg(), AvgWindSpeed: wind.avg(), Current: r.Current}
	if lo.n > 0 {
		v := lo.min
		ws.MinTemperature = &v
	}
	if hi.n > 0 {
		v := hi.max
		ws.MaxTemperature = &v
	}
	n := min(len(r.Records), maxWeatherSamples)
	ws.Samples = append([]WeatherRecord(nil), r.Records[:n]...)
	return ws
}

func summarizeTransport(st []TransitStation) TransportSummary {
	n := min(len(st), maxStations)
	return TransportSummary{Stations: append([]TransitStation(nil), st[:n]...)}
}

func summarizeVegetation(trees []Tree) VegetationSummary {
	counts := make(map[string]int)
	for _, t := range trees {
		sp := t.Species
		if sp == "" {
			sp = "Unknown"
		}
		counts[sp]++
	}
	top := make([]SpeciesCount, 0, len(counts))
	for sp, c := range counts {
		top = append(top, SpeciesCount{Species: sp, Count: c})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Species < top[j].Species
	})
	vs := VegetationSummary{Total: len(trees), SpeciesCount: len(counts)}
	vs.TopSpecies = top[:min(len(top), maxTopSpecies)]
	vs.Samples = append([]Tree(nil), trees[:min(len(trees), maxTreeSamples)]...)
	return vs
}

func summarizeAmenities(am []Amenity) AmenitySummary {
	counts := make(map[string]int)
	for _, a := range am {
		counts[a.Kind]++
	}
	kinds := make([]AmenityKindCount, 0, len(counts))
	for k, c := range counts {
		kinds = append(kinds, AmenityKindCount{Kind: k, Count: c})
	}
	sort.Slice(kinds, func(i, j int) bool {
		if kinds[i].Count != kinds[j].Count {
			return kinds[i].Count > kinds[j].Count
		}
		return kinds[i].Kind < kinds[j].Kind
	})
	return AmenitySummary{
		Total:   len(am),
		Kinds:   kinds[:min(len(kinds), maxAmenityKinds)],
		Samples: append([]Amenity(nil), am[:min(len(am), maxAmenitySamples)]...),
	}
}
