package biz

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-kratos/kratos/v2/errors"
)

var (
	BadRequest     = "BAD_REQUEST"
	InternalServer = "INTERNAL_SERVER"
	NotFound       = "NOT_FOUND"
)

// 请求级错误：查询校验、执行失败或无数据时终止本次请求。
var (
	ErrEmptyQuestion    = errors.New(400, BadRequest, "empty message")
	ErrDestructiveQuery = errors.New(400, "DESTRUCTIVE_QUERY", "destructive graph query detected")
	ErrQueryExecution   = errors.New(502, "QUERY_EXECUTION", "graph query failed")
	ErrLanguageModel    = errors.New(502, "LANGUAGE_MODEL", "language model call failed")
	ErrNoDataAvailable  = errors.New(404, "NO_DATA_AVAILABLE", "no data source produced a usable result")
	ErrSessionNotFound  = errors.New(404, NotFound, "session not found")
	ErrInvalidCategory  = errors.New(400, "INVALID_CATEGORY", "unknown category filter")
	ErrInternalServer   = errors.New(500, InternalServer, "internal server error")
)

// 可恢复错误：只记录日志，影响范围限于单条记录或单个数据源。
var (
	ErrMalformedModelOutput = errors.New(500, "MALFORMED_MODEL_OUTPUT", "model output could not be reduced to text")
	ErrResultWidening       = errors.New(500, "RESULT_WIDENING", "result widening re-run failed")
	ErrGeocoding            = errors.New(502, "GEOCODING", "reverse geocoding failed")
	ErrInvalidCoordinate    = errors.New(400, "INVALID_COORDINATE", "coordinate out of range")
	ErrExternalSource       = errors.New(502, "EXTERNAL_SOURCE", "external data source failed")
)

var errEmptyQuery = fmt.Errorf("empty query")

// 数据源名称。
const (
	SourceCityLayers = "citylayers"
	SourceWeather    = "weather"
	SourceTransport  = "transport"
	SourceVegetation = "vegetation"
	SourceAmenities  = "amenities"
)

// externalSourceOrder 外部数据源的拉取与汇总顺序。
var externalSourceOrder = []string{SourceWeather, SourceTransport, SourceVegetation, SourceAmenities}

// Category 为固定的六个城市质量维度。
type Category int

const (
	CategoryBeauty Category = iota + 1
	CategorySound
	CategoryMovement
	CategoryProtection
	CategoryClimateComfort
	CategoryActivities
)

var categoryNames = map[Category]string{
	CategoryBeauty:         "Beauty",
	CategorySound:          "Sound",
	CategoryMovement:       "Movement",
	CategoryProtection:     "Protection",
	CategoryClimateComfort: "Climate Comfort",
	CategoryActivities:     "Activities",
}

// Valid 判断是否属于 1-6 枚举。
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// ParseCategory 解析类别过滤条件：空串或 all 表示不过滤，其余接受 1-6 或类别名。
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if c := Category(n); c.Valid() {
			return c, nil
		}
		return 0, ErrInvalidCategory.WithMetadata(map[string]string{"category": s})
	}
	for c, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return c, nil
		}
	}
	return 0, ErrInvalidCategory.WithMetadata(map[string]string{"category": s})
}

// UncategorizedLabel 无任何类别时的展示名。
const UncategorizedLabel = "Uncategorized"
