package data

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureColor(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	out, noColor := color.Output, color.NoColor
	color.Output, color.NoColor = &buf, true
	t.Cleanup(func() { color.Output, color.NoColor = out, noColor })
	return &buf
}

func TestReportQuery(t *testing.T) {
	buf := captureColor(t)

	reportQuery("cypher", "MATCH (n) RETURN n", nil, 10*time.Millisecond, time.Second, false)
	assert.Empty(t, buf.String())

	reportQuery("cypher", "MATCH (n) RETURN n", nil, 2*time.Second, time.Second, false)
	assert.Contains(t, buf.String(), "slow cypher: MATCH (n) RETURN n")

	buf.Reset()
	reportQuery("sql", "SELECT 1", []any{}, time.Millisecond, 0, true)
	assert.Contains(t, buf.String(), "sql: SELECT 1")
	assert.NotContains(t, buf.String(), "slow")
}

func TestHooksMeasureQueries(t *testing.T) {
	buf := captureColor(t)
	h := &Hooks{slow: time.Nanosecond}

	ctx, err := h.Before(context.Background(), "SELECT 1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = h.After(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "slow sql: SELECT 1")

	// 没有 Before 记录的开始时间时不输出
	buf.Reset()
	_, err = h.After(context.Background(), "SELECT 2")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
