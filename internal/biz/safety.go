package biz

import (
	"regexp"
	"strings"
)

// destructivePatterns 为变更类 Cypher 关键字，大小写不敏感、整词匹配。
var destructivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bDELETE\b`),
	regexp.MustCompile(`(?i)\bDETACH\b`),
	regexp.MustCompile(`(?i)\bDROP\b`),
	regexp.MustCompile(`(?i)\bCREATE\b`),
	regexp.MustCompile(`(?i)\bMERGE\b`),
	regexp.MustCompile(`(?i)\bSET\b`),
	regexp.MustCompile(`(?i)\bREMOVE\b`),
	regexp.MustCompile(`(?i)\bapoc\.periodic\.(iterate|commit)\b`),
	regexp.MustCompile(`(?i)\bLOAD\s+CSV\b`),
	regexp.MustCompile(`(?i)\bIN\s+TRANSACTIONS\b`),
}

// ValidateQuery 检查生成的查询是否包含写操作。
// 模型输出可能串联多条语句，因此扫描全文而非首条语句。
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrQueryExecution.WithCause(errEmptyQuery)
	}
	for _, re := range destructivePatterns {
		if m := re.FindString(query); m != "" {
			return ErrDestructiveQuery.WithMetadata(map[string]string{"keyword": strings.ToUpper(m)})
		}
	}
	return nil
}
