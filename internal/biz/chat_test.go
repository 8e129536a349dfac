package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	graph    *fakeGraph
	llm      *fakeLLM
	geo      *fakeGeocoder
	sessions *memSessions
	weather  *fakeSource
	uc       *ChatUsecase
}

func newChatFixture() *chatFixture {
	f := &chatFixture{
		graph: &fakeGraph{schema: "Node properties: places {place_id, location, latitude, longitude}"},
		llm: &fakeLLM{
			query:  "```cypher\nMATCH (p:places) RETURN p LIMIT 50\n```",
			answer: "Two places found.",
		},
		geo:      newFakeGeocoder(),
		sessions: newMemSessions(),
		weather:  &fakeSource{name: SourceWeather, result: SourceResult{Error: "upstream 500"}},
	}
	bc := testBootstrap()
	f.uc = NewChatUsecase(
		f.graph,
		NewQueryGenerator(f.llm, NewGraphLayout(bc.Data), bc.Pipeline, testLogger),
		NewQueryExecutor(f.graph, bc.Pipeline, testLogger),
		NewAddressEnricher(f.geo, bc.Pipeline, testLogger),
		NewAnswerSynthesizer(f.llm, testLogger),
		ExternalSources{f.weather},
		f.sessions,
		newMemCache(),
		bc.Pipeline,
		testLogger,
	)
	return f
}

func TestAskEndToEnd(t *testing.T) {
	f := newChatFixture()
	f.graph.results = [][]Row{{
		placeRow("P1", 48.20821, 16.37381, map[string]any{"c": map[string]any{"category_id": int64(1), "type": "Beauty"}}),
		placeRow("P2", 48.20824, 16.37379, nil),
	}}
	ctx := context.Background()

	sess, err := f.uc.Session(ctx, "")
	require.NoError(t, err)
	res, err := f.uc.Ask(ctx, sess, AskParams{Question: "  beautiful spots?  "})
	require.NoError(t, err)

	assert.Equal(t, "Two places found.", res.Answer)
	assert.Equal(t, "MATCH (p:places) RETURN p LIMIT 50", res.Query)
	require.Len(t, res.Places, 2)
	assert.Equal(t, res.Places[0].Address, res.Places[1].Address)
	assert.Equal(t, 1, f.geo.total())
	assert.Equal(t, []string{SourceCityLayers}, res.Context.Contributed())

	saved, err := f.sessions.Load(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, saved.History, 1)
	assert.Equal(t, "beautiful spots?", saved.History[0].Question)
	assert.Equal(t, res.Query, saved.LastQuery)
}

func TestAskCarriesHistoryAndAddressCache(t *testing.T) {
	f := newChatFixture()
	row := placeRow("P1", 48.2, 16.3, nil)
	f.graph.results = [][]Row{{row}, {row}}
	ctx := context.Background()

	sess, err := f.uc.Session(ctx, "")
	require.NoError(t, err)
	_, err = f.uc.Ask(ctx, sess, AskParams{Question: "first question"})
	require.NoError(t, err)

	again, err := f.uc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, again.ID)
	_, err = f.uc.Ask(ctx, again, AskParams{Question: "follow up"})
	require.NoError(t, err)

	var queryPrompt string
	for _, p := range f.llm.prompts {
		if strings.HasPrefix(p, "Task: Generate Cypher") {
			queryPrompt = p
		}
	}
	assert.Contains(t, queryPrompt, "Previous Q: first question")
	assert.Equal(t, 1, f.geo.total())
}

func TestAskRejectsDestructiveQuery(t *testing.T) {
	f := newChatFixture()
	f.llm.query = "MATCH (p:places) DETACH DELETE p"
	ctx := context.Background()

	sess, err := f.uc.Session(ctx, "")
	require.NoError(t, err)
	res, err := f.uc.Ask(ctx, sess, AskParams{Question: "remove everything"})
	require.Error(t, err)
	assert.True(t, ErrDestructiveQuery.Is(err))
	assert.Nil(t, res)
	assert.Zero(t, f.graph.calls())
	assert.Zero(t, f.sessions.saves)
	// 只调用了查询生成，没有生成回答
	assert.Len(t, f.llm.prompts, 1)
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newChatFixture()
	sess, err := f.uc.Session(context.Background(), "")
	require.NoError(t, err)
	_, err = f.uc.Ask(context.Background(), sess, AskParams{Question: " "})
	assert.True(t, ErrEmptyQuestion.Is(err))
}

func TestAskNoDataAvailable(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	sess, err := f.uc.Session(ctx, "")
	require.NoError(t, err)

	_, err = f.uc.Ask(ctx, sess, AskParams{
		Question: "weather?",
		Bounds:   &MapBounds{North: 48.3, South: 48.1, East: 16.5, West: 16.2},
		Sources:  map[string]bool{SourceCityLayers: false, SourceWeather: true},
	})
	require.Error(t, err)
	assert.True(t, ErrNoDataAvailable.Is(err))
	assert.Equal(t, 1, f.weather.calls)
}

func TestAskEmptyGraphResult(t *testing.T) {
	f := newChatFixture()
	f.graph.results = [][]Row{{}}
	ctx := context.Background()
	sess, err := f.uc.Session(ctx, "")
	require.NoError(t, err)

	res, err := f.uc.Ask(ctx, sess, AskParams{Question: "fountains on the moon?"})
	require.NoError(t, err)
	assert.Equal(t, "**No results found.**", res.Answer)
	assert.Empty(t, res.Places)
	assert.Empty(t, res.Context.Contributed())
	// 只调用了查询生成
	assert.Len(t, f.llm.prompts, 1)
	assert.Equal(t, 1, f.sessions.saves)
}

func TestAskFailedSourceDoesNotFailRequest(t *testing.T) {
	f := newChatFixture()
	f.graph.results = [][]Row{{placeRow("P1", 48.2, 16.3, nil)}}
	ctx := context.Background()
	sess, err := f.uc.Session(ctx, "")
	require.NoError(t, err)

	res, err := f.uc.Ask(ctx, sess, AskParams{
		Question: "what is it like here?",
		Sources:  map[string]bool{SourceWeather: true, SourceTransport: true},
	})
	require.NoError(t, err)
	// 没有地图范围时不拉取外部数据
	assert.Zero(t, f.weather.calls)
	assert.False(t, res.Context.Sources[SourceWeather].OK)
	assert.False(t, res.Context.Sources[SourceTransport].OK)
	assert.Equal(t, []string{SourceCityLayers}, res.Context.Contributed())
}

func TestSessionExpiry(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	f.uc.now = func() time.Time { return now }

	sess, err := f.uc.Session(ctx, "unknown")
	require.NoError(t, err)
	assert.NotEqual(t, "unknown", sess.ID)
	require.NoError(t, f.sessions.Save(ctx, sess))

	now = now.Add(7 * time.Hour)
	fresh, err := f.uc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, fresh.ID)
}

func TestSessionCommitKeepsRecentTurns(t *testing.T) {
	s := NewSession(time.Hour, time.Now())
	for i := range maxStoredTurns + 3 {
		s.Commit(ChatTurn{Question: fmt.Sprintf("q%d", i)}, "", nil, time.Hour, time.Now())
	}
	require.Len(t, s.History, maxStoredTurns)
	assert.Equal(t, "q3", s.History[0].Question)
}

func TestMapFeatures(t *testing.T) {
	f := newChatFixture()
	set := AggregateRecords([]Row{
		placeRow("P1", 48.2, 16.3, map[string]any{
			"c":  map[string]any{"category_id": int64(2), "type": "Sound"},
			"pg": map[string]any{"grade": 4.0},
			"co": map[string]any{"comment": "calm"},
		}),
		{"p": map[string]any{"place_id": "P2", "location": "nowhere"}},
	})
	sess := &Session{LastPlaces: set.Places()}

	features := f.uc.MapFeatures(sess)
	require.Len(t, features, 1)
	assert.Equal(t, "P1", features[0].PlaceID)
	assert.Equal(t, "Sound", features[0].Category)
	require.NotNil(t, features[0].Grade)
	assert.InDelta(t, 4.0, *features[0].Grade, 1e-9)
	assert.Equal(t, []string{"calm"}, features[0].Comments)
}

// barrierSource 在所有数据源都开始拉取之前阻塞。
type barrierSource struct {
	name    string
	arrived *sync.WaitGroup
}

func (s *barrierSource) Name() string { return s.name }

func (s *barrierSource) Fetch(ctx context.Context, _ Area) SourceResult {
	s.arrived.Done()
	done := make(chan struct{})
	go func() {
		s.arrived.Wait()
		close(done)
	}()
	select {
	case <-done:
		return SourceResult{OK: true, Data: s.name}
	case <-ctx.Done():
		return SourceResult{Error: ctx.Err().Error()}
	}
}

func TestFetchSourcesRunsConcurrently(t *testing.T) {
	f := newChatFixture()
	var arrived sync.WaitGroup
	arrived.Add(2)
	f.uc.sources = map[string]ExternalSource{
		SourceWeather:   &barrierSource{name: SourceWeather, arrived: &arrived},
		SourceTransport: &barrierSource{name: SourceTransport, arrived: &arrived},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := f.uc.fetchSources(ctx, &QueryContext{
		Bounds:  &MapBounds{North: 48.3, South: 48.1, East: 16.5, West: 16.2},
		Sources: map[string]bool{SourceWeather: true, SourceTransport: true, SourceVegetation: true},
	})
	assert.True(t, out[SourceWeather].OK)
	assert.True(t, out[SourceTransport].OK)
	assert.Equal(t, "source not configured", out[SourceVegetation].Error)
}

func TestParseCategory(t *testing.T) {
	for in, want := range map[string]Category{
		"":                0,
		"all":             0,
		"ALL":             0,
		"2":               CategorySound,
		"6":               CategoryActivities,
		"climate comfort": CategoryClimateComfort,
	} {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"0", "7", "noise"} {
		_, err := ParseCategory(in)
		assert.True(t, ErrInvalidCategory.Is(err), in)
	}
}
