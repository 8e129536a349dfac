package biz

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"citylayers/internal/conf"
	"citylayers/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// DefaultWidenThreshold 结果行数达到该值时视为可能被 LIMIT 截断。
// 无法区分“恰好返回这么多”与“被截断在这里”，两种情况都会触发一次重跑。
const DefaultWidenThreshold = 200

// QueryExecutor 校验并执行生成的查询，必要时放宽结果上限重跑一次。
type QueryExecutor struct {
	graph     GraphRepo
	threshold int
	log       *log.Helper
}

// NewQueryExecutor .
func NewQueryExecutor(graph GraphRepo, p *conf.Pipeline, logger log.Logger) *QueryExecutor {
	threshold := p.WidenThreshold
	if threshold <= 0 {
		threshold = DefaultWidenThreshold
	}
	return &QueryExecutor{graph: graph, threshold: threshold, log: log.NewHelper(logger)}
}

// Execute 校验失败或图服务报错时终止请求；放宽重跑失败只记录日志并保留原结果。
func (e *QueryExecutor) Execute(ctx context.Context, query string, categoryFilter Category) ([]Row, error) {
	if err := ValidateQuery(query); err != nil {
		metrics.GraphQueries.WithLabelValues("rejected").Inc()
		e.log.WithContext(ctx).Warnf("rejected generated query: %v", err)
		return nil, err
	}
	rows, err := e.graph.Query(ctx, query)
	if err != nil {
		metrics.GraphQueries.WithLabelValues("error").Inc()
		return nil, ErrQueryExecution.WithCause(err)
	}
	metrics.GraphQueries.WithLabelValues("ok").Inc()
	if len(rows) < e.threshold {
		return rows, nil
	}

	widened := widenQuery(query, categoryFilter)
	if widened == query {
		metrics.Widenings.WithLabelValues("skipped").Inc()
		return rows, nil
	}
	e.log.WithContext(ctx).Infof("result reached cap (%d rows), re-running without LIMIT", len(rows))
	full, err := e.rerun(ctx, widened)
	if err != nil {
		metrics.Widenings.WithLabelValues("failed").Inc()
		e.log.WithContext(ctx).Warnf("%v", ErrResultWidening.WithCause(err))
		return rows, nil
	}
	metrics.Widenings.WithLabelValues("ok").Inc()
	return full, nil
}

func (e *QueryExecutor) rerun(ctx context.Context, query string) ([]Row, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	return e.graph.Query(ctx, query)
}

var (
	limitClausePattern = regexp.MustCompile(`(?i)\s+LIMIT\s+\d+`)
	wherePattern       = regexp.MustCompile(`(?i)\bWHERE\b`)
	categoryVarPattern = regexp.MustCompile(`\(c\s*:`)
)

// widenQuery 去掉 LIMIT 子句；类别过滤生效但条件未写入 WHERE 时按文本补上。
// 这是对查询文本的正则修补，对模型生成的非常规写法并不可靠。
func widenQuery(query string, categoryFilter Category) string {
	out := limitClausePattern.ReplaceAllString(query, "")
	if !categoryFilter.Valid() {
		return out
	}
	cond := fmt.Sprintf("c.category_id = %d", int(categoryFilter))
	present := regexp.MustCompile(fmt.Sprintf(`(?i)category_id\s*=\s*%d\b`, int(categoryFilter)))
	if present.MatchString(out) || !categoryVarPattern.MatchString(out) {
		return out
	}
	if loc := wherePattern.FindStringIndex(out); loc != nil {
		return out[:loc[1]] + " " + cond + " AND" + out[loc[1]:]
	}
	// 没有 WHERE 时在第一个 RETURN 前补一个
	if i := strings.Index(strings.ToUpper(out), "RETURN"); i >= 0 {
		return out[:i] + "WHERE " + cond + "\n" + out[i:]
	}
	return out
}
