package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateRecordsMergesJoinRows(t *testing.T) {
	c1 := map[string]any{"category_id": int64(1), "type": "Beauty"}
	c2 := map[string]any{"category_id": int64(2), "type": "Sound"}
	rows := []Row{
		placeRow("P1", 48.2, 16.3, map[string]any{"c": c1}),
		placeRow("P1", 48.2, 16.3, map[string]any{"c": c2}),
		placeRow("P1", 48.2, 16.3, map[string]any{"c": c1}),
	}

	set := AggregateRecords(rows)
	require.Equal(t, 1, set.Len())
	p, ok := set.Get("P1")
	require.True(t, ok)
	require.Len(t, p.Categories, 2)
	assert.Equal(t, CategoryBeauty, p.Categories[0].ID)
	assert.Equal(t, CategorySound, p.Categories[1].ID)
	assert.True(t, p.HasCoordinates)
	assert.Equal(t, "Place P1", p.Location)
}

func TestAggregateRecordsKeepsFirstSeenOrder(t *testing.T) {
	rows := []Row{
		placeRow("B", 1, 1, map[string]any{"co": map[string]any{"comment": "first"}}),
		placeRow("A", 2, 2, nil),
		placeRow("B", 1, 1, map[string]any{"co": map[string]any{"comment": "second"}}),
		{"p": map[string]any{"location": "no id"}},
		{"co": map[string]any{"comment": "orphan"}},
	}
	set := AggregateRecords(rows)
	places := set.Places()
	require.Len(t, places, 2)
	assert.Equal(t, "B", places[0].PlaceID)
	assert.Equal(t, "A", places[1].PlaceID)
	require.Len(t, places[0].Comments, 2)
	assert.Equal(t, "first", places[0].Comments[0].Text)
	assert.Equal(t, "second", places[0].Comments[1].Text)
}

func TestAggregateRecordsIdempotent(t *testing.T) {
	rows := []Row{
		placeRow("P1", 48.2, 16.3, map[string]any{
			"c":  map[string]any{"category_id": int64(3), "type": "Movement"},
			"pg": map[string]any{"grade": 4.0, "category": int64(3)},
			"co": map[string]any{"comment": "wide sidewalks"},
		}),
		placeRow("P1", 48.2, 16.3, map[string]any{
			"pg": map[string]any{"grade": 2.0, "category": int64(3)},
			"i":  map[string]any{"url": "https://img/1.jpg"},
		}),
		placeRow("P2", 48.1, 16.2, map[string]any{
			"pg": map[string]any{"grade": 5.0, "category": int64(6)},
		}),
	}

	first := AggregateRecords(rows)
	second := AggregateRecords(first.Rows())
	assert.Equal(t, first.Places(), second.Places())
}

func TestAggregateRecordsRecoversCategoriesFromGrades(t *testing.T) {
	rows := []Row{
		placeRow("P1", 1, 1, map[string]any{"pg": []any{
			map[string]any{"grade": 3.0, "category": int64(4)},
			map[string]any{"grade": 5.0, "category": 4.0},
			map[string]any{"grade": 1.0, "category": "5"},
			map[string]any{"grade": 2.0, "category": int64(9)},
		}}),
		placeRow("P2", 1, 1, map[string]any{
			"c":  map[string]any{"category_id": int64(1), "type": "Beauty"},
			"pg": map[string]any{"grade": 3.0, "category": int64(4)},
		}),
		placeRow("P3", 1, 1, nil),
	}
	set := AggregateRecords(rows)

	p1, _ := set.Get("P1")
	require.Len(t, p1.Categories, 2)
	assert.Equal(t, CategoryProtection, p1.Categories[0].ID)
	assert.Equal(t, CategoryClimateComfort, p1.Categories[1].ID)
	assert.True(t, p1.Categories[0].Recovered)

	p2, _ := set.Get("P2")
	require.Len(t, p2.Categories, 1)
	assert.Equal(t, CategoryBeauty, p2.Categories[0].ID)
	assert.False(t, p2.Categories[0].Recovered)

	p3, _ := set.Get("P3")
	assert.Empty(t, p3.Categories)
	assert.Equal(t, UncategorizedLabel, p3.CategoryLabel())
}

func TestAggregateRecordsDottedAndNumberedAliases(t *testing.T) {
	rows := []Row{{
		"p.place_id":  "P9",
		"p.latitude":  48.21,
		"p.longitude": 16.37,
		"p.location":  "Stadtpark",
		"c1":          map[string]any{"category_id": int64(2), "type": "Sound"},
		"c2":          int64(5),
		"grade_note":  "ignored scalar",
	}}
	set := AggregateRecords(rows)
	p, ok := set.Get("P9")
	require.True(t, ok)
	assert.Equal(t, "Stadtpark", p.Location)
	assert.True(t, p.HasCoordinates)
	require.Len(t, p.Categories, 2)
	assert.Equal(t, "Sound", p.Categories[0].Type)
	assert.Equal(t, "Climate Comfort", p.Categories[1].Type)
}

func TestAverageGradeIgnoresNonNumeric(t *testing.T) {
	set := AggregateRecords([]Row{placeRow("P1", 1, 1, map[string]any{"pg": []any{
		map[string]any{"grade": 4.0},
		map[string]any{"grade": "n/a"},
		map[string]any{"grade": 2},
	}})})
	p, _ := set.Get("P1")
	avg, ok := p.AverageGrade()
	require.True(t, ok)
	assert.InDelta(t, 3.0, avg, 1e-9)
}

func TestAggregateRecordsNodeIdentity(t *testing.T) {
	grade := func(id string) map[string]any {
		return map[string]any{"grade": 4.0, "category": int64(1), NodeIdentityKey: id}
	}
	rows := []Row{
		placeRow("A", 48.2, 16.37, map[string]any{"pg": grade("4:g:1"), "co": map[string]any{"comment": "nice", NodeIdentityKey: "4:c:1"}}),
		placeRow("A", 48.2, 16.37, map[string]any{"pg": grade("4:g:2"), "co": map[string]any{"comment": "nice", NodeIdentityKey: "4:c:2"}}),
		placeRow("A", 48.2, 16.37, map[string]any{"pg": grade("4:g:1")}),
	}
	set := AggregateRecords(rows)
	p, ok := set.Get("A")
	require.True(t, ok)
	assert.Len(t, p.Grades, 2)
	assert.Len(t, p.Comments, 2)

	// 标识随 Rows 保留，重新聚合结果不变
	again := AggregateRecords(set.Rows())
	assert.Equal(t, set.Places(), again.Places())
}

func TestAggregateRecordsScalarProjection(t *testing.T) {
	rows := []Row{
		{"place_id": "A", "location": "Stadtpark", "latitude": 48.2, "longitude": 16.37, "category": "Beauty", "comment": "lovely pond"},
		{"place_id": "A", "location": "Stadtpark", "latitude": 48.2, "longitude": 16.37, "category": int64(2), "grade": 4.0},
		{"place_id": "B", "location": "Karlsplatz", "latitude": 48.199, "longitude": 16.369},
		{"location": "no id", "latitude": 1.0},
	}
	set := AggregateRecords(rows)
	require.Equal(t, 2, set.Len())

	a, ok := set.Get("A")
	require.True(t, ok)
	assert.Equal(t, "Stadtpark", a.Location)
	assert.True(t, a.HasCoordinates)
	assert.NotContains(t, a.Attributes, "category")
	require.Len(t, a.Categories, 2)
	assert.Equal(t, CategoryBeauty, a.Categories[0].ID)
	assert.Equal(t, CategorySound, a.Categories[1].ID)
	require.Len(t, a.Comments, 1)
	assert.Equal(t, "lovely pond", a.Comments[0].Text)
	require.Len(t, a.Grades, 1)

	b, ok := set.Get("B")
	require.True(t, ok)
	assert.InDelta(t, 48.199, b.Latitude, 1e-9)
}

func TestFoldDottedLeavesInputUntouched(t *testing.T) {
	p := map[string]any{"place_id": "P1"}
	row := Row{"p": p, "p.location": "Stadtpark"}

	folded := foldDotted(row)
	assert.Equal(t, map[string]any{"place_id": "P1", "location": "Stadtpark"}, folded["p"])
	assert.Equal(t, map[string]any{"place_id": "P1"}, p)
	assert.Contains(t, row, "p.location")
}
