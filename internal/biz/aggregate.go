package biz

import (
	"regexp"
	"sort"
	"strings"
)

// aliasRole 为行内别名在聚合中的角色。
type aliasRole int

const (
	roleUnknown aliasRole = iota
	rolePlace
	roleCategory
	roleComment
	roleGrade
	roleSubGrade
	roleImage
)

// 别名分类表；查询形态不同时别名会变化（c1..c6 等），按表而非固定 schema 匹配。
var aliasRoles = map[string]aliasRole{
	"p": rolePlace, "pl": rolePlace, "place": rolePlace, "places": rolePlace,
	"c": roleCategory, "cat": roleCategory, "category": roleCategory, "categories": roleCategory,
	"co": roleComment, "comment": roleComment, "comments": roleComment,
	"pg": roleGrade, "grade": roleGrade, "grades": roleGrade, "place_grade": roleGrade, "place_grades": roleGrade,
	"psg": roleSubGrade, "subgrade": roleSubGrade, "sub_grade": roleSubGrade, "subgrades": roleSubGrade, "place_subgrades": roleSubGrade,
	"i": roleImage, "img": roleImage, "image": roleImage, "images": roleImage,
}

var numberedCategoryAlias = regexp.MustCompile(`^(c|cat)\d+$`)

func classifyAlias(alias string, v any) aliasRole {
	a := strings.ToLower(alias)
	if r, ok := aliasRoles[a]; ok {
		return r
	}
	if numberedCategoryAlias.MatchString(a) {
		return roleCategory
	}
	// 未知别名按属性形态识别
	m, ok := v.(map[string]any)
	if !ok {
		return roleUnknown
	}
	switch {
	case has(m, "place_id"):
		return rolePlace
	case has(m, "grade"), has(m, "value"):
		return roleGrade
	case has(m, "category_id"):
		return roleCategory
	case has(m, "comment"), has(m, "text"):
		return roleComment
	case has(m, "image_url"), has(m, "url"):
		return roleImage
	}
	return roleUnknown
}

func has(m map[string]any, k string) bool {
	v, ok := m[k]
	return ok && v != nil
}

// foldDotted 将 "p.place_id" 形式的投影列归并为 alias -> map。
func foldDotted(row Row) Row {
	var folded Row
	var cloned map[string]bool
	for k, v := range row {
		alias, prop, ok := strings.Cut(k, ".")
		if !ok || alias == "" || prop == "" {
			continue
		}
		if folded == nil {
			cloned = make(map[string]bool)
			folded = make(Row, len(row))
			for k2, v2 := range row {
				if !strings.Contains(k2, ".") {
					folded[k2] = v2
				}
			}
		}
		m, _ := folded[alias].(map[string]any)
		if !cloned[alias] {
			// 同一行既有 p 又有 p.x 时在副本上合并，不改动调用方的 map
			m = cloneProps(m)
			folded[alias] = m
			cloned[alias] = true
		}
		m[prop] = v
	}
	if folded == nil {
		return row
	}
	return folded
}

// AggregateRecords 按 place_id 合并原始 join 行。
// 同一地点的类别、评论、评分、子评分、图片按行序累积，相同节点只保留一次；
// 若某地点没有任何直接类别但评分带有数值类别引用，则按 1-6 枚举推回类别。
func AggregateRecords(rows []Row) *PlaceSet {
	set := NewPlaceSet()
	for _, raw := range rows {
		row := foldDotted(raw)
		aliases := make([]string, 0, len(row))
		for alias := range row {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		var place map[string]any
		for _, alias := range aliases {
			v := row[alias]
			if classifyAlias(alias, v) == rolePlace {
				if m, ok := v.(map[string]any); ok {
					place = m
					break
				}
			}
		}
		if place == nil {
			place = scalarPlace(row)
		}
		if place == nil {
			continue
		}
		id := firstString(place, "place_id")
		if id == "" {
			continue
		}
		rec, ok := set.Get(id)
		if !ok {
			rec = newPlaceRecord(id, place)
			set.add(rec)
		}
		for _, alias := range aliases {
			v := row[alias]
			role := classifyAlias(alias, v)
			if role == rolePlace || role == roleUnknown {
				continue
			}
			for _, item := range flatten(v) {
				rec.accumulate(role, item)
			}
		}
	}
	for _, p := range set.Places() {
		p.recoverCategories()
		p.seen = nil
	}
	return set
}

// scalarPlace 处理 RETURN p.place_id AS place_id, p.latitude AS latitude ... 这类逐列投影：
// 行内没有地点 map 但有顶层 place_id 时，未归入别名表的标量列即为地点属性。
func scalarPlace(row Row) map[string]any {
	if v, ok := row["place_id"]; !ok || v == nil {
		return nil
	}
	place := make(map[string]any)
	for k, v := range row {
		switch v.(type) {
		case map[string]any, []any, []map[string]any:
			continue
		}
		if classifyAlias(k, v) == roleUnknown {
			place[k] = v
		}
	}
	if _, ok := place["place_id"]; !ok {
		return nil
	}
	return place
}

func flatten(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(t))
		for _, x := range t {
			if x != nil {
				out = append(out, x)
			}
		}
		return out
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, x := range t {
			out = append(out, x)
		}
		return out
	default:
		return []any{v}
	}
}

func newPlaceRecord(id string, props map[string]any) *PlaceRecord {
	rec := &PlaceRecord{
		PlaceID:    id,
		Location:   firstString(props, "location", "name", "display_name"),
		Attributes: cloneProps(props),
		Categories: []CategoryAssignment{},
		Comments:   []Comment{},
		Grades:     []Grade{},
		seen:       make(map[string]struct{}),
	}
	delete(rec.Attributes, NodeIdentityKey)
	lat, okLat := firstFloat(props, "latitude", "lat")
	lon, okLon := firstFloat(props, "longitude", "lon", "lng")
	if okLat && okLon {
		rec.Latitude, rec.Longitude, rec.HasCoordinates = lat, lon, true
	}
	return rec
}

func (p *PlaceRecord) firstSighting(kind string, v any) bool {
	if p.seen == nil {
		p.seen = make(map[string]struct{})
	}
	fp := fingerprint(kind, v)
	if _, dup := p.seen[fp]; dup {
		return false
	}
	p.seen[fp] = struct{}{}
	return true
}

func (p *PlaceRecord) accumulate(role aliasRole, v any) {
	m, isMap := v.(map[string]any)
	switch role {
	case roleCategory:
		if !isMap {
			if c, ok := toCategory(v); ok {
				m = map[string]any{"category_id": int64(c), "type": c.String()}
			} else if s := toString(v); s != "" {
				m = map[string]any{"type": s}
			} else {
				return
			}
		}
		ca, ok := categoryFromProps(m)
		if !ok || !p.firstSighting("c", m) {
			return
		}
		p.Categories = append(p.Categories, ca)
	case roleComment:
		if !isMap {
			s := toString(v)
			if s == "" {
				return
			}
			m = map[string]any{"comment": s}
		}
		text := firstString(m, "comment", "text", "content", "description")
		if text == "" || !p.firstSighting("co", m) {
			return
		}
		p.Comments = append(p.Comments, Comment{Text: text, Props: m})
	case roleGrade:
		if !isMap {
			f, ok := toFloat(v)
			if !ok {
				return
			}
			m = map[string]any{"grade": f}
		}
		if !p.firstSighting("pg", m) {
			return
		}
		g := Grade{Props: m}
		g.Value, g.HasValue = firstFloat(m, "grade", "value")
		for _, k := range []string{"category", "category_id"} {
			if c, ok := toCategory(m[k]); ok {
				g.CategoryRef = c
				break
			}
		}
		p.Grades = append(p.Grades, g)
	case roleSubGrade:
		if !isMap {
			m = map[string]any{"value": v}
		}
		if p.firstSighting("psg", m) {
			p.SubGrades = append(p.SubGrades, m)
		}
	case roleImage:
		if !isMap {
			s := toString(v)
			if s == "" {
				return
			}
			m = map[string]any{"url": s}
		}
		if p.firstSighting("i", m) {
			p.Images = append(p.Images, m)
		}
	}
}

func categoryFromProps(m map[string]any) (CategoryAssignment, bool) {
	c, ok := toCategory(m["category_id"])
	if !ok {
		c, ok = toCategory(m["id"])
	}
	name := firstString(m, "type", "name", "description")
	if !ok {
		// 只有名称时按枚举名反查
		for id, n := range categoryNames {
			if strings.EqualFold(n, name) {
				c, ok = id, true
				break
			}
		}
	}
	if !ok {
		return CategoryAssignment{}, false
	}
	if name == "" {
		name = c.String()
	}
	return CategoryAssignment{ID: c, Type: name, Props: m}, true
}

// recoverCategories 在没有直接类别 join 时由评分引用推回类别，不凭空添加。
func (p *PlaceRecord) recoverCategories() {
	if len(p.Categories) > 0 {
		return
	}
	seen := make(map[Category]bool)
	for _, g := range p.Grades {
		if g.CategoryRef == 0 || seen[g.CategoryRef] {
			continue
		}
		seen[g.CategoryRef] = true
		p.Categories = append(p.Categories, CategoryAssignment{
			ID:        g.CategoryRef,
			Type:      g.CategoryRef.String(),
			Recovered: true,
			Props:     map[string]any{"category_id": int64(g.CategoryRef), "type": g.CategoryRef.String()},
		})
	}
}
