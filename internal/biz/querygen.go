package biz

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"citylayers/internal/conf"
	"citylayers/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// GraphLayout 描述地点-评分-类别的 join 路径命名，来自配置。
type GraphLayout struct {
	PlaceLabel      string
	GradeLabel      string
	CategoryLabel   string
	GradeToPlace    string
	GradeToCategory string
}

// NewGraphLayout .
func NewGraphLayout(c *conf.Data) GraphLayout {
	g := c.Graph
	return GraphLayout{
		PlaceLabel:      g.PlaceLabel,
		GradeLabel:      g.GradeLabel,
		CategoryLabel:   g.CategoryLabel,
		GradeToPlace:    g.GradeToPlace,
		GradeToCategory: g.GradeToCategory,
	}
}

// QueryGenerator 通过语言模型把自然语言问题翻译为 Cypher 查询。
type QueryGenerator struct {
	llm         LanguageModel
	layout      GraphLayout
	historySize int
	log         *log.Helper
}

// NewQueryGenerator .
func NewQueryGenerator(llm LanguageModel, layout GraphLayout, p *conf.Pipeline, logger log.Logger) *QueryGenerator {
	return &QueryGenerator{llm: llm, layout: layout, historySize: p.HistoryPromptSize, log: log.NewHelper(logger)}
}

const cypherTemplate = `Task: Generate Cypher statement to query a graph database.
Instructions:
Use only the provided relationship types and properties in the schema.
Do not use any other relationship types or properties that are not provided.
Only read data: never create, merge, set, remove, delete or drop anything.

Schema:
%s

Note: Do not include any explanations or apologies in your responses.
Do not respond to any questions that might ask anything else than for you to construct a Cypher statement.
Do not include any text except the generated Cypher statement.

Always return comprehensive information about places:
- Return the place node (p) with ALL its properties
- Return related category nodes (c) and grade nodes (pg)
- Return comments (co), sub grades (psg) and images (i) if they exist
- Use OPTIONAL MATCH for relationships that might not exist
%s
The question is:
%s`

// Generate 构造提示词并返回模型生成的查询文本（尚未校验）。
func (g *QueryGenerator) Generate(ctx context.Context, schema string, qc *QueryContext) (string, error) {
	prompt := fmt.Sprintf(cypherTemplate, schema, g.instructions(qc), enhanceQuestion(qc.Question, qc.recentHistory(g.historySize)))
	start := time.Now()
	raw, err := g.llm.Generate(ctx, prompt)
	metrics.LLMDuration.WithLabelValues("query").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", ErrLanguageModel.WithCause(fmt.Errorf("generate query: %w", err))
	}
	text, err := NormalizeModelOutput(raw)
	if err != nil {
		g.log.WithContext(ctx).Warnf("model output coerced to string: %v", err)
	}
	query := stripCodeFence(text)
	g.log.WithContext(ctx).Debugf("generated cypher: %s", query)
	return query, nil
}

// enhanceQuestion 以纯文本方式把最近几轮问答拼到问题前。
func enhanceQuestion(question string, history []ChatTurn) string {
	if len(history) == 0 {
		return question
	}
	var sb strings.Builder
	for _, t := range history {
		fmt.Fprintf(&sb, "Previous Q: %s\nPrevious A: %s\n", t.Question, t.Answer)
	}
	sb.WriteString("\nCurrent question: ")
	sb.WriteString(question)
	return sb.String()
}

// instructions 按 单点 > 类别过滤 > 地图范围 的优先级生成附加指令。
func (g *QueryGenerator) instructions(qc *QueryContext) string {
	l := g.layout
	var sb strings.Builder
	switch {
	case qc.ClickedPoint != nil:
		pt := qc.ClickedPoint
		fmt.Fprintf(&sb, `
SINGLE LOCATION QUERY:
The user selected one point on the map (latitude %f, longitude %f).
- Match the place at exactly or nearly these coordinates:
  WHERE abs(p.latitude - %f) < 0.0001 AND abs(p.longitude - %f) < 0.0001
- Return all its categories, grades, comments and images
- End the query with LIMIT 1 on the place
`, pt.Lat, pt.Lon, pt.Lat, pt.Lon)
	case qc.CategoryFilter.Valid():
		id := int(qc.CategoryFilter)
		fmt.Fprintf(&sb, `
CATEGORY FILTER ACTIVE (category_id = %d, %s):
- The category join is MANDATORY, use MATCH and never OPTIONAL MATCH for it:
  MATCH (pg:%s)-[:%s]->(p:%s)
  MATCH (pg)-[:%s]->(c:%s)
  WHERE c.category_id = %d
- Do NOT filter on the category after an OPTIONAL MATCH; that keeps places with a null category.
- Return p, pg and c
`, id, qc.CategoryFilter, l.GradeLabel, l.GradeToPlace, l.PlaceLabel, l.GradeToCategory, l.CategoryLabel, id)
		if qc.Bounds != nil && !namesOtherLocation(qc.Question) {
			sb.WriteString(boundsInstruction(*qc.Bounds))
		}
	case qc.Bounds != nil && !namesOtherLocation(qc.Question):
		sb.WriteString(boundsInstruction(*qc.Bounds))
		fmt.Fprintf(&sb, `- Join categories through grades when returning them:
  OPTIONAL MATCH (pg:%s)-[:%s]->(p)
  OPTIONAL MATCH (pg)-[:%s]->(c:%s)
`, l.GradeLabel, l.GradeToPlace, l.GradeToCategory, l.CategoryLabel)
	}
	return sb.String()
}

func boundsInstruction(b MapBounds) string {
	return fmt.Sprintf(`
MAP AREA FILTER:
Only return places inside the visible map area:
  WHERE p.latitude >= %f AND p.latitude <= %f AND p.longitude >= %f AND p.longitude <= %f
`, b.South, b.North, b.West, b.East)
}

var (
	namedLocationPattern = regexp.MustCompile(`\b(?:in|near|around|at)\s+(\p{Lu}[\p{L}\-]+)`)
	genericLocationWords = map[string]bool{"This": true, "The": true, "My": true, "Our": true, "Here": true}
)

// namesOtherLocation 粗略判断问题是否显式点名了其他地点，如 "cafes in Graz"。
func namesOtherLocation(question string) bool {
	for _, m := range namedLocationPattern.FindAllStringSubmatch(question, -1) {
		if !genericLocationWords[m[1]] {
			return true
		}
	}
	return false
}

var codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// stripCodeFence 去掉代码块标记与前导的 "cypher" 标记。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.Trim(strings.TrimSpace(s), "`")
	if len(s) > 6 && strings.EqualFold(s[:6], "cypher") && (s[6] == '\n' || s[6] == ' ' || s[6] == ':') {
		s = s[7:]
	}
	return strings.TrimSpace(s)
}

// NormalizeModelOutput 在模型服务边界把各种返回形态归一为纯文本，按顺序尝试：
// 字符串；{type,text} 包装；内容块列表（字符串或 {text} map）；最后退化为 fmt.Sprint。
// 退化时仍返回强制转换的文本，同时返回 ErrMalformedModelOutput。
func NormalizeModelOutput(raw any) (string, error) {
	if s, ok := textOf(raw); ok {
		return s, nil
	}
	if blocks, ok := raw.([]any); ok {
		var sb strings.Builder
		for _, b := range blocks {
			s, ok := textOf(b)
			if !ok {
				return fmt.Sprint(raw), ErrMalformedModelOutput.WithCause(fmt.Errorf("unsupported content block %T", b))
			}
			sb.WriteString(s)
		}
		return sb.String(), nil
	}
	if ss, ok := raw.([]string); ok {
		return strings.Join(ss, ""), nil
	}
	if raw == nil {
		return "", ErrMalformedModelOutput.WithCause(fmt.Errorf("nil model output"))
	}
	return fmt.Sprint(raw), ErrMalformedModelOutput.WithCause(fmt.Errorf("unsupported model output %T", raw))
}

func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		if s, ok := t["text"].(string); ok {
			return s, true
		}
		if inner, ok := t["content"]; ok {
			return textOf(inner)
		}
	case map[string]string:
		if s, ok := t["text"]; ok {
			return s, true
		}
	}
	return "", false
}
