package biz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func places(coords ...[2]float64) []*PlaceRecord {
	out := make([]*PlaceRecord, len(coords))
	for i, c := range coords {
		out[i] = &PlaceRecord{
			PlaceID:        fmt.Sprintf("P%d", i),
			Location:       fmt.Sprintf("Place %d", i),
			Latitude:       c[0],
			Longitude:      c[1],
			HasCoordinates: true,
		}
	}
	return out
}

func TestCoordKey(t *testing.T) {
	assert.Equal(t, "48.2082,16.3738", CoordKey(48.20821, 16.37381))
	assert.Equal(t, CoordKey(48.20821, 16.37381), CoordKey(48.20824, 16.37379))
	assert.NotEqual(t, CoordKey(48.20821, 16.37381), CoordKey(48.20861, 16.37381))
}

func TestEnrichSharesLookupForSameKey(t *testing.T) {
	geo := newFakeGeocoder()
	e := NewAddressEnricher(geo, testPipeline(), testLogger)
	ps := places([2]float64{48.20821, 16.37381}, [2]float64{48.20824, 16.37379})

	n := e.Enrich(context.Background(), ps, newMemCache())
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, geo.total())
	assert.Equal(t, ps[0].Address, ps[1].Address)
	assert.NotEmpty(t, ps[0].Address)
}

func TestEnrichUsesCache(t *testing.T) {
	geo := newFakeGeocoder()
	e := NewAddressEnricher(geo, testPipeline(), testLogger)
	cache := newMemCache()

	e.Enrich(context.Background(), places([2]float64{48.2, 16.3}, [2]float64{48.3, 16.4}), cache)
	require.Equal(t, 2, geo.total())

	again := places([2]float64{48.2, 16.3}, [2]float64{48.3, 16.4})
	n := e.Enrich(context.Background(), again, cache)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, geo.total())
	assert.Equal(t, "Street 48.2000,16.3000", again[0].Address)
}

func TestEnrichSkipsInvalidCoordinates(t *testing.T) {
	geo := newFakeGeocoder()
	e := NewAddressEnricher(geo, testPipeline(), testLogger)
	ps := places([2]float64{123, 16.3}, [2]float64{48.2, 200})
	ps = append(ps, &PlaceRecord{PlaceID: "nocoords", Location: "Somewhere"})

	n := e.Enrich(context.Background(), ps, nil)
	assert.Zero(t, n)
	assert.Zero(t, geo.total())
	assert.Equal(t, "Place 0", ps[0].DisplayName())
	assert.Equal(t, "Somewhere", ps[2].DisplayName())
}

func TestEnrichIsolatesFailures(t *testing.T) {
	geo := newFakeGeocoder()
	geo.fail[CoordKey(48.2, 16.3)] = true
	e := NewAddressEnricher(geo, testPipeline(), testLogger)
	cache := newMemCache()
	ps := places([2]float64{48.2, 16.3}, [2]float64{48.3, 16.4})

	n := e.Enrich(context.Background(), ps, cache)
	assert.Equal(t, 1, n)
	assert.Empty(t, ps[0].Address)
	assert.Equal(t, "Place 0", ps[0].DisplayName())
	assert.NotEmpty(t, ps[1].Address)
	_, cached := cache.Get(context.Background(), CoordKey(48.2, 16.3))
	assert.False(t, cached)
}

func TestEnrichBoundsWorkAndConcurrency(t *testing.T) {
	geo := newFakeGeocoder()
	geo.delay = 5 * time.Millisecond
	p := testPipeline()
	p.MaxGeocode = 4
	p.GeocodeWorkers = 2
	e := NewAddressEnricher(geo, p, testLogger)

	var coords [][2]float64
	for i := range 10 {
		coords = append(coords, [2]float64{48 + float64(i)*0.01, 16})
	}
	n := e.Enrich(context.Background(), places(coords...), nil)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, geo.total())
	assert.LessOrEqual(t, geo.peak.Load(), int32(2))
}

func TestEnrichPerCallTimeout(t *testing.T) {
	geo := newFakeGeocoder()
	geo.delay = time.Second
	p := testPipeline()
	p.GeocodeTimeout = 0
	e := NewAddressEnricher(geo, p, testLogger)
	e.timeout = 10 * time.Millisecond

	ps := places([2]float64{48.2, 16.3})
	n := e.Enrich(context.Background(), ps, nil)
	assert.Zero(t, n)
	assert.Empty(t, ps[0].Address)
}
