package biz

import (
	"context"
	"strings"
	"sync"
	"time"

	"citylayers/internal/conf"
	"citylayers/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"golang.org/x/sync/errgroup"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewGraphLayout,
	NewQueryGenerator,
	NewQueryExecutor,
	NewAddressEnricher,
	NewAnswerSynthesizer,
	NewChatUsecase,
)

// ExternalSources 已配置的辅助数据源集合。
type ExternalSources []ExternalSource

// AskParams 一次提问的输入。
type AskParams struct {
	Question       string
	Bounds         *MapBounds
	CategoryFilter Category
	ClickedPoint   *Point
	Sources        map[string]bool
}

// ChatResult 一次提问的输出。
type ChatResult struct {
	Answer  string
	Query   string
	Places  []*PlaceRecord
	Context *AggregatedContext
}

// MapFeature 地图渲染用的扁平地点。
type MapFeature struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Location   string   `json:"location"`
	Address    string   `json:"address,omitempty"`
	PlaceID    string   `json:"place_id"`
	Category   string   `json:"category"`
	Categories []string `json:"categories,omitempty"`
	Grade      *float64 `json:"grade,omitempty"`
	Comments   []string `json:"comments,omitempty"`
}

// ChatUsecase 串联 查询生成 -> 校验执行 -> 聚合 -> 排序 -> 地址补全 -> 上下文聚合 -> 回答。
type ChatUsecase struct {
	graph     GraphRepo
	generator *QueryGenerator
	executor  *QueryExecutor
	enricher  *AddressEnricher
	answers   *AnswerSynthesizer
	sources   map[string]ExternalSource
	sessions  SessionRepo
	addresses AddressCache
	conf      *conf.Pipeline
	log       *log.Helper
	now       func() time.Time
}

// NewChatUsecase .
func NewChatUsecase(
	graph GraphRepo,
	generator *QueryGenerator,
	executor *QueryExecutor,
	enricher *AddressEnricher,
	answers *AnswerSynthesizer,
	sources ExternalSources,
	sessions SessionRepo,
	addresses AddressCache,
	c *conf.Pipeline,
	logger log.Logger,
) *ChatUsecase {
	uc := &ChatUsecase{
		graph:     graph,
		generator: generator,
		executor:  executor,
		enricher:  enricher,
		answers:   answers,
		sources:   make(map[string]ExternalSource, len(sources)),
		sessions:  sessions,
		addresses: addresses,
		conf:      c,
		log:       log.NewHelper(logger),
		now:       time.Now,
	}
	for _, s := range sources {
		uc.sources[s.Name()] = s
	}
	return uc
}

// Session 加载会话；不存在或已过期时新建（首次使用即创建）。
func (uc *ChatUsecase) Session(ctx context.Context, id string) (*Session, error) {
	now := uc.now()
	var sess *Session
	if id != "" {
		s, err := uc.sessions.Load(ctx, id)
		switch {
		case err == nil && !s.Expired(now):
			sess = s
		case err != nil && !ErrSessionNotFound.Is(err):
			return nil, err
		}
	}
	if sess == nil {
		sess = NewSession(uc.conf.SessionTTL.AsDuration(), now)
	}
	sess.Addresses = &sessionCache{inner: uc.addresses, prefix: sess.ID}
	return sess, nil
}

// Ask 处理一次提问。查询校验或执行失败时整个请求失败，不返回基于失败查询的部分回答；
// 单个地点、评论或外部数据源的失败只降级处理。
func (uc *ChatUsecase) Ask(ctx context.Context, sess *Session, p AskParams) (*ChatResult, error) {
	question := strings.TrimSpace(p.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	qc := &QueryContext{
		Question:       question,
		History:        sess.History,
		Bounds:         p.Bounds,
		CategoryFilter: p.CategoryFilter,
		ClickedPoint:   p.ClickedPoint,
		Sources:        p.Sources,
	}

	schema, err := uc.graph.Schema(ctx)
	if err != nil {
		return nil, ErrQueryExecution.WithCause(err)
	}
	query, err := uc.generator.Generate(ctx, schema, qc)
	if err != nil {
		return nil, err
	}
	rows, err := uc.executor.Execute(ctx, query, qc.CategoryFilter)
	if err != nil {
		return nil, err
	}
	set := AggregateRecords(rows)
	uc.log.WithContext(ctx).Infof("query returned %d rows, %d places", len(rows), set.Len())

	RankPlaceComments(set, question, uc.conf.TopComments)
	uc.enricher.Enrich(ctx, set.Places(), sess.Addresses)

	external := uc.fetchSources(ctx, qc)
	ac, err := BuildContext(set, external, qc.Sources, uc.conf.MaxContextPlaces)
	if err != nil {
		return nil, err
	}
	answer, err := uc.answers.Synthesize(ctx, ac, question)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	sess.Commit(ChatTurn{Question: question, Answer: answer}, query, set.Places(), uc.conf.SessionTTL.AsDuration(), now)
	if err := uc.sessions.Save(ctx, sess); err != nil {
		uc.log.WithContext(ctx).Errorf("save session %s: %v", sess.ID, err)
	}
	return &ChatResult{Answer: answer, Query: query, Places: set.Places(), Context: ac}, nil
}

// fetchSources 并发拉取已启用的外部数据源，失败的数据源只被标记为未贡献。
func (uc *ChatUsecase) fetchSources(ctx context.Context, qc *QueryContext) map[string]SourceResult {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]SourceResult)
	)
	record := func(name string, res SourceResult, outcome string) {
		metrics.SourceFetches.WithLabelValues(name, outcome).Inc()
		mu.Lock()
		out[name] = res
		mu.Unlock()
	}
	area := Area{Bounds: qc.Bounds, Point: qc.ClickedPoint}
	_, located := area.Center()
	for _, name := range externalSourceOrder {
		if !qc.Sources[name] {
			continue
		}
		src, ok := uc.sources[name]
		if !ok {
			record(name, SourceResult{Error: "source not configured"}, "unconfigured")
			continue
		}
		if !located {
			record(name, SourceResult{Error: "no map area or point given"}, "skipped")
			continue
		}
		g.Go(func() error {
			res := src.Fetch(ctx, area)
			if !res.OK {
				uc.log.WithContext(ctx).Warnf("%v", ErrExternalSource.WithMetadata(map[string]string{"source": name, "error": res.Error}))
				record(name, res, "failed")
				return nil
			}
			record(name, res, "ok")
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// MapFeatures 将会话最近一次结果展开为地图要素。
func (uc *ChatUsecase) MapFeatures(sess *Session) []MapFeature {
	out := make([]MapFeature, 0, len(sess.LastPlaces))
	for _, p := range sess.LastPlaces {
		if !p.HasCoordinates {
			continue
		}
		f := MapFeature{
			Lat:      p.Latitude,
			Lon:      p.Longitude,
			Location: p.Location,
			Address:  p.Address,
			PlaceID:  p.PlaceID,
			Category: p.CategoryLabel(),
		}
		for _, c := range p.Categories {
			f.Categories = append(f.Categories, c.Type)
		}
		if avg, ok := p.AverageGrade(); ok {
			f.Grade = &avg
		}
		for _, c := range p.Comments {
			f.Comments = append(f.Comments, c.Text)
		}
		out = append(out, f)
	}
	return out
}

// sessionCache 为共享地址缓存加上会话前缀。
type sessionCache struct {
	inner  AddressCache
	prefix string
}

func (c *sessionCache) Get(ctx context.Context, key string) (string, bool) {
	if c.inner == nil {
		return "", false
	}
	return c.inner.Get(ctx, c.prefix+":"+key)
}

func (c *sessionCache) Set(ctx context.Context, key, address string) {
	if c.inner != nil {
		c.inner.Set(ctx, c.prefix+":"+key, address)
	}
}
