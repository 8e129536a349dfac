package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"citylayers/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

const answerTemplate = `You are a helpful assistant providing information about urban places in a city,
rated along six quality-of-life categories (Beauty, Sound, Movement, Protection, Climate Comfort, Activities).

Question: %s

Available data (JSON, one entry per data source):
%s

Instructions:
1. For a SPECIFIC location, give all available information: categories, grade, the most relevant comments and the address.
2. When listing MULTIPLE places, keep it concise and always include coordinates with place IDs.
3. Prefer the comments that relate to the current question over comments of the highest rated place.
4. Weave weather, public transport, vegetation and nearby amenity data into the answer only when present.
5. If the data does not allow an answer, say "I don't know".

Answer in Markdown (### headers, **bold**, bullet lists, tables with |, ` + "`code`" + ` for IDs).

Answer:`

// fallbackPreview 兜底表格最多展示的行数。
const fallbackPreview = 10

var dontKnowSignals = []string{"don't know", "do not know", "don’t know", "i don't have"}

// AnswerSynthesizer 根据聚合上下文生成最终回答。
type AnswerSynthesizer struct {
	llm LanguageModel
	log *log.Helper
}

// NewAnswerSynthesizer .
func NewAnswerSynthesizer(llm LanguageModel, logger log.Logger) *AnswerSynthesizer {
	return &AnswerSynthesizer{llm: llm, log: log.NewHelper(logger)}
}

// Synthesize 模型表示无法回答或调用失败时，直接用已检索到的地点生成表格，不再重新查询。
// 没有任何数据源带回记录时不调用模型，直接返回无结果。
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, ac *AggregatedContext, question string) (string, error) {
	if len(ac.Contributed()) == 0 {
		return FormatPlaceTable(nil), nil
	}
	prompt := fmt.Sprintf(answerTemplate, question, ac.PromptJSON())
	start := time.Now()
	raw, err := s.llm.Generate(ctx, prompt)
	metrics.LLMDuration.WithLabelValues("answer").Observe(time.Since(start).Seconds())
	if err != nil {
		if len(ac.Places) == 0 {
			return "", ErrLanguageModel.WithCause(err)
		}
		s.log.WithContext(ctx).Warnf("answer generation failed, rendering table: %v", err)
		return FormatPlaceTable(ac.Places), nil
	}
	answer, err := NormalizeModelOutput(raw)
	if err != nil {
		s.log.WithContext(ctx).Warnf("answer output coerced to string: %v", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || signalsDontKnow(answer) {
		if len(ac.Places) > 0 {
			return FormatPlaceTable(ac.Places), nil
		}
	}
	return answer, nil
}

func signalsDontKnow(answer string) bool {
	lower := strings.ToLower(answer)
	for _, sig := range dontKnowSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// FormatPlaceTable 以 Markdown 表格输出地点（序号、名称、类别、坐标）。
func FormatPlaceTable(places []*PlaceRecord) string {
	if len(places) == 0 {
		return "**No results found.**"
	}
	total := len(places)
	preview := min(total, fallbackPreview)
	var sb strings.Builder
	if preview < total {
		fmt.Fprintf(&sb, "### %d locations (showing first %d)\n\n", total, preview)
	} else {
		fmt.Fprintf(&sb, "### %d locations\n\n", total)
	}
	sb.WriteString("| # | Location | Category | Place ID (Coordinates) |\n")
	sb.WriteString("|---|----------|----------|------------------------|\n")
	for i, p := range places[:preview] {
		coords := "N/A"
		if p.HasCoordinates {
			coords = fmt.Sprintf("%.6f, %.6f", p.Latitude, p.Longitude)
		}
		fmt.Fprintf(&sb, "| %d | **%s** | %s | `%s` (%s) |\n", i+1, escapeCell(p.DisplayName()), escapeCell(p.CategoryLabel()), p.PlaceID, coords)
	}
	if total > preview {
		fmt.Fprintf(&sb, "\n_... and %d more_\n", total-preview)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
