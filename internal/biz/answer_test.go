package biz

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWith(t *testing.T, n int) *AggregatedContext {
	t.Helper()
	var rows []Row
	for i := range n {
		rows = append(rows, placeRow(fmt.Sprintf("P%d", i), 48+float64(i)/100, 16.3, nil))
	}
	ac, _ := BuildContext(AggregateRecords(rows), nil, nil, 0)
	return ac
}

func TestSynthesizePassesAnswerThrough(t *testing.T) {
	llm := &fakeLLM{answer: "### Stadtpark\nA **quiet** park."}
	s := NewAnswerSynthesizer(llm, testLogger)

	got, err := s.Synthesize(context.Background(), contextWith(t, 1), "quiet parks?")
	require.NoError(t, err)
	assert.Equal(t, "### Stadtpark\nA **quiet** park.", got)
	assert.Contains(t, llm.lastPrompt(), "Question: quiet parks?")
	assert.Contains(t, llm.lastPrompt(), `"place_id": "P0"`)
}

func TestSynthesizeDontKnowFallsBackToTable(t *testing.T) {
	s := NewAnswerSynthesizer(&fakeLLM{answer: "I don't know."}, testLogger)

	got, err := s.Synthesize(context.Background(), contextWith(t, 2), "anything?")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "### 2 locations"))
	assert.Contains(t, got, "Uncategorized")
	assert.Contains(t, got, "`P1`")
}

func TestSynthesizeModelFailure(t *testing.T) {
	s := NewAnswerSynthesizer(&fakeLLM{answerErr: fmt.Errorf("503")}, testLogger)

	got, err := s.Synthesize(context.Background(), contextWith(t, 1), "x")
	require.NoError(t, err)
	assert.Contains(t, got, "### 1 locations")

	weatherOnly := map[string]SourceResult{SourceWeather: {OK: true, Data: &WeatherReport{Records: []WeatherRecord{{Date: "2024-07-01"}}}}}
	ac, err := BuildContext(NewPlaceSet(), weatherOnly, map[string]bool{SourceWeather: true}, 0)
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background(), ac, "x")
	require.Error(t, err)
	assert.True(t, ErrLanguageModel.Is(err))
}

func TestSynthesizeEmptyResultSkipsModel(t *testing.T) {
	llm := &fakeLLM{answer: "should not be used"}
	s := NewAnswerSynthesizer(llm, testLogger)

	ac, err := BuildContext(NewPlaceSet(), nil, nil, 0)
	require.NoError(t, err)
	got, err := s.Synthesize(context.Background(), ac, "benches near the river?")
	require.NoError(t, err)
	assert.Equal(t, "**No results found.**", got)
	assert.Empty(t, llm.lastPrompt())
}

func TestFormatPlaceTable(t *testing.T) {
	assert.Equal(t, "**No results found.**", FormatPlaceTable(nil))

	ps := contextWith(t, 12).Places
	ps[0].Address = "Ring | 1"
	out := FormatPlaceTable(ps)
	assert.Contains(t, out, "### 12 locations (showing first 10)")
	assert.Contains(t, out, "| 1 | **Ring \\| 1** | Uncategorized | `P0` (48.000000, 16.300000) |")
	assert.Contains(t, out, "_... and 2 more_")
	assert.NotContains(t, out, "`P10`")
}
