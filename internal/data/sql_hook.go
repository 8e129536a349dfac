package data

import (
	"context"
	"time"

	"github.com/fatih/color"
)

type beginKey struct{}

const defaultSlowThreshold = 500 * time.Millisecond

// Hooks 记录会话库的慢 SQL，debug 模式下打印全部语句。
type Hooks struct {
	slow  time.Duration
	debug bool
}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	begin, ok := ctx.Value(beginKey{}).(time.Time)
	if !ok {
		return ctx, nil
	}
	d := time.Since(begin)
	reportQuery("sql", query, args, d, h.slow, h.debug)
	return ctx, nil
}

// reportQuery 图查询与 SQL 共用的慢查询输出。
func reportQuery(kind, query string, args any, d, slow time.Duration, debug bool) {
	if slow <= 0 {
		slow = defaultSlowThreshold
	}
	if d > slow {
		color.Red("%v slow %s: %s %v .took: %s\n", time.Now().Format(time.RFC3339), kind, query, args, d)
		return
	}
	if debug {
		color.Green("%v %s: %s %v .took: %s\n", time.Now().Format(time.RFC3339), kind, query, args, d)
	}
}
