package biz

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"citylayers/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

var testLogger = log.NewStdLogger(io.Discard)

func testBootstrap() *conf.Bootstrap {
	bc := &conf.Bootstrap{}
	bc.SetDefaults()
	return bc
}

func testPipeline() *conf.Pipeline {
	return testBootstrap().Pipeline
}

func testLayout() GraphLayout {
	return NewGraphLayout(testBootstrap().Data)
}

// fakeGraph 按调用顺序返回预置结果。
type fakeGraph struct {
	mu        sync.Mutex
	schema    string
	schemaErr error
	results   [][]Row
	errs      []error
	queries   []string
}

func (g *fakeGraph) Schema(context.Context) (string, error) {
	return g.schema, g.schemaErr
}

func (g *fakeGraph) Query(_ context.Context, cypher string) ([]Row, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.queries)
	g.queries = append(g.queries, cypher)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(g.results) {
		return g.results[i], nil
	}
	return nil, nil
}

func (g *fakeGraph) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queries)
}

// fakeLLM 区分查询生成与回答生成两类提示词。
type fakeLLM struct {
	mu        sync.Mutex
	query     any
	answer    any
	queryErr  error
	answerErr error
	prompts   []string
}

func (m *fakeLLM) Generate(_ context.Context, prompt string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if strings.HasPrefix(prompt, "Task: Generate Cypher") {
		return m.query, m.queryErr
	}
	return m.answer, m.answerErr
}

func (m *fakeLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// fakeGeocoder 记录调用次数与最大并发。
type fakeGeocoder struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]bool
	delay    time.Duration
	inflight atomic.Int32
	peak     atomic.Int32
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{calls: make(map[string]int), fail: make(map[string]bool)}
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	key := CoordKey(lat, lon)
	g.mu.Lock()
	g.calls[key]++
	fail := g.fail[key]
	g.mu.Unlock()
	if fail {
		return "", fmt.Errorf("rate limited")
	}
	return "Street " + key, nil
}

func (g *fakeGeocoder) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

type memCache struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemCache() *memCache { return &memCache{m: make(map[string]string)} }

func (c *memCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = address
}

type memSessions struct {
	mu    sync.Mutex
	m     map[string]*Session
	saves int
}

func newMemSessions() *memSessions { return &memSessions{m: make(map[string]*Session)} }

func (r *memSessions) Load(_ context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessions) Save(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	r.saves++
	return nil
}

func (r *memSessions) DeleteExpired(context.Context) (int, error) { return 0, nil }

type fakeSource struct {
	name   string
	result SourceResult
	calls  int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(context.Context, Area) SourceResult {
	s.calls++
	return s.result
}

func placeRow(id string, lat, lon float64, extra map[string]any) Row {
	row := Row{"p": map[string]any{"place_id": id, "location": "Place " + id, "latitude": lat, "longitude": lon}}
	for k, v := range extra {
		row[k] = v
	}
	return row
}

func manyRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{"p": map[string]any{"place_id": fmt.Sprintf("P%d", i)}}
	}
	return rows
}
