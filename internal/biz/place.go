package biz

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row 为图服务返回的一行原始记录：别名 -> 标量或属性 map。
type Row map[string]any

// NodeIdentityKey 图节点展开为 map 时携带的节点标识；
// 属性完全相同的两个节点以此区分，不以属性相等去重。
const NodeIdentityKey = "_element_id"

// CategoryAssignment 地点与类别的关联。
type CategoryAssignment struct {
	ID        Category       `json:"category_id"`
	Type      string         `json:"type"`
	Recovered bool           `json:"recovered,omitempty"` // 由评分记录的 category 字段推回
	Props     map[string]any `json:"-"`
}

// Comment 地点评论；Score 仅在排序后有效，不持久化。
type Comment struct {
	Text  string         `json:"text"`
	Score float64        `json:"relevance_score"`
	Props map[string]any `json:"-"`
}

// Grade 地点评分，CategoryRef 为 0 表示没有类别引用。
type Grade struct {
	Value       float64        `json:"grade"`
	HasValue    bool           `json:"has_value"`
	CategoryRef Category       `json:"category,omitempty"`
	Props       map[string]any `json:"-"`
}

// PlaceRecord 聚合后的地点记录，每个 place_id 只出现一次。
type PlaceRecord struct {
	PlaceID        string               `json:"place_id"`
	Location       string               `json:"location"`
	Address        string               `json:"address,omitempty"`
	Latitude       float64              `json:"latitude"`
	Longitude      float64              `json:"longitude"`
	HasCoordinates bool                 `json:"has_coordinates"`
	Attributes     map[string]any       `json:"attributes,omitempty"`
	Categories     []CategoryAssignment `json:"categories"`
	Comments       []Comment            `json:"comments"`
	Grades         []Grade              `json:"grades"`
	SubGrades      []map[string]any     `json:"sub_grades,omitempty"`
	Images         []map[string]any     `json:"images,omitempty"`

	seen map[string]struct{}
}

// DisplayName 优先返回逆地理得到的地址，其次为图中的名称。
func (p *PlaceRecord) DisplayName() string {
	if p.Address != "" {
		return p.Address
	}
	if p.Location != "" {
		return p.Location
	}
	return "Unknown"
}

// CategoryLabel 以逗号拼接类别名，无类别时为 Uncategorized。
func (p *PlaceRecord) CategoryLabel() string {
	if len(p.Categories) == 0 {
		return UncategorizedLabel
	}
	names := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		names = append(names, c.Type)
	}
	return strings.Join(names, ", ")
}

// AverageGrade 返回数值评分的平均值。
func (p *PlaceRecord) AverageGrade() (float64, bool) {
	var sum float64
	var n int
	for _, g := range p.Grades {
		if g.HasValue {
			sum += g.Value
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// PlaceSet 按首次出现顺序保存的地点集合。
type PlaceSet struct {
	order []string
	byID  map[string]*PlaceRecord
}

// NewPlaceSet .
func NewPlaceSet() *PlaceSet {
	return &PlaceSet{byID: make(map[string]*PlaceRecord)}
}

// Len .
func (s *PlaceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Get .
func (s *PlaceSet) Get(id string) (*PlaceRecord, bool) {
	if s == nil {
		return nil, false
	}
	p, ok := s.byID[id]
	return p, ok
}

// Places 按插入顺序返回全部地点。
func (s *PlaceSet) Places() []*PlaceRecord {
	if s == nil {
		return nil
	}
	out := make([]*PlaceRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *PlaceSet) add(p *PlaceRecord) {
	s.order = append(s.order, p.PlaceID)
	s.byID[p.PlaceID] = p
}

// Rows 将聚合结果展开为以地点为键的行，可再次交给 AggregateRecords。
// 推回的类别不写出，重新聚合时会再次由评分推回。
func (s *PlaceSet) Rows() []Row {
	rows := make([]Row, 0, s.Len())
	for _, p := range s.Places() {
		row := Row{"p": cloneProps(p.Attributes)}
		var cats, comments, grades, subs, images []any
		for _, c := range p.Categories {
			if !c.Recovered {
				cats = append(cats, cloneProps(c.Props))
			}
		}
		for _, c := range p.Comments {
			comments = append(comments, cloneProps(c.Props))
		}
		for _, g := range p.Grades {
			grades = append(grades, cloneProps(g.Props))
		}
		for _, sg := range p.SubGrades {
			subs = append(subs, cloneProps(sg))
		}
		for _, im := range p.Images {
			images = append(images, cloneProps(im))
		}
		putList(row, "c", cats)
		putList(row, "co", comments)
		putList(row, "pg", grades)
		putList(row, "psg", subs)
		putList(row, "i", images)
		rows = append(rows, row)
	}
	return rows
}

func putList(row Row, alias string, vals []any) {
	if len(vals) > 0 {
		row[alias] = vals
	}
}

func cloneProps(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fingerprint 用于同一地点下重复 join 值的去重；节点按标识，其余值按内容，json 序列化 map 时键有序。
func fingerprint(kind string, v any) string {
	if m, ok := v.(map[string]any); ok {
		if id := toString(m[NodeIdentityKey]); id != "" {
			return kind + "#" + id
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return kind + ":" + fmt.Sprint(v)
	}
	return kind + ":" + string(b)
}

// 以下为动态属性的宽松取值。

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if f, ok := toFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int, int64, int32, uint, uint64, uint32:
		return fmt.Sprintf("%d", t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toCategory 将数值或数字字符串解析为 1-6 类别。
func toCategory(v any) (Category, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	c := Category(int(f))
	return c, c.Valid()
}
