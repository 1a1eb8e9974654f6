package timetable

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable/internal/model"
)

func booking(title string, start, end time.Time) model.Booking {
	return model.Booking{Title: title, Start: start, End: end}
}

func titles(r Row) []string {
	out := make([]string, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Title
	}
	return out
}

func TestPack_MixedShortAndLongItems(t *testing.T) {
	items := []model.Booking{
		booking("short-1", at(0, 9, 10), at(0, 12, 10)),
		booking("short-2", at(0, 13, 0), at(0, 15, 0)),
		booking("short-3", at(0, 15, 10), at(0, 16, 0)),
		booking("long-1", at(0, 9, 0), at(0, 15, 0)),
		booking("long-2", at(0, 9, 10), at(0, 15, 10)),
	}

	res := Pack(items)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"short-1", "short-2", "short-3"}, titles(res.Rows[0]))
	assert.Equal(t, []string{"long-1"}, titles(res.Rows[1]))
	assert.Equal(t, []string{"long-2"}, titles(res.Rows[2]))
	assert.Empty(t, res.Invalid)
}

func TestPack_TouchingItemsShareRow(t *testing.T) {
	res := Pack([]model.Booking{
		booking("a", at(0, 9, 0), at(0, 10, 0)),
		booking("b", at(0, 10, 0), at(0, 11, 0)),
	})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"a", "b"}, titles(res.Rows[0]))
}

func TestPack_RowItemsOrderedByStart(t *testing.T) {
	res := Pack([]model.Booking{
		booking("late", at(0, 14, 0), at(0, 15, 0)),
		booking("early", at(0, 9, 0), at(0, 10, 0)),
		booking("mid", at(0, 11, 0), at(0, 12, 0)),
	})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"early", "mid", "late"}, titles(res.Rows[0]))
}

func TestPack_RejectsMalformedItems(t *testing.T) {
	res := Pack([]model.Booking{
		booking("ok", at(0, 9, 0), at(0, 10, 0)),
		booking("empty", at(0, 9, 0), at(0, 9, 0)),
		booking("reversed", at(0, 11, 0), at(0, 10, 0)),
	})
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"ok"}, titles(res.Rows[0]))
	require.Len(t, res.Invalid, 2)
	assert.Equal(t, "empty", res.Invalid[0].Title)
	assert.Equal(t, "reversed", res.Invalid[1].Title)
}

// Host-order first fit would need three rows here; the greedy fallback
// brings it back to the overlap depth of two.
func TestPack_FallsBackToOptimalGreedy(t *testing.T) {
	items := []model.Booking{
		booking("a", at(0, 9, 0), at(0, 10, 0)),
		booking("b", at(0, 11, 0), at(0, 12, 0)),
		booking("c", at(0, 9, 30), at(0, 10, 30)),
		booking("d", at(0, 10, 0), at(0, 11, 30)),
	}
	require.Equal(t, 3, len(packFirstFit(items)))

	res := Pack(items)
	assert.Len(t, res.Rows, MaxOverlap(items))
	assert.Len(t, res.Rows, 2)
}

func TestPack_Empty(t *testing.T) {
	res := Pack(nil)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Invalid)
}

func TestMaxOverlap(t *testing.T) {
	assert.Equal(t, 0, MaxOverlap(nil))
	assert.Equal(t, 1, MaxOverlap([]model.Booking{
		booking("a", at(0, 9, 0), at(0, 10, 0)),
		booking("b", at(0, 10, 0), at(0, 11, 0)),
	}))
	assert.Equal(t, 3, MaxOverlap([]model.Booking{
		booking("a", at(0, 9, 0), at(0, 12, 0)),
		booking("b", at(0, 10, 0), at(0, 11, 0)),
		booking("c", at(0, 10, 30), at(0, 13, 0)),
		booking("bad", at(0, 10, 30), at(0, 10, 0)),
	}))
}

// No row holds overlapping items and the row count equals the overlap depth.
func TestPack_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 500; trial++ {
		n := rng.Intn(25)
		items := make([]model.Booking, n)
		for i := range items {
			start := at(0, 0, rng.Intn(24*60))
			items[i] = booking("x", start, start.Add(time.Duration(rng.Intn(240)+1)*time.Minute))
		}

		res := Pack(items)

		placed := 0
		for _, row := range res.Rows {
			placed += len(row.Items)
			for i := range row.Items {
				for j := i + 1; j < len(row.Items); j++ {
					assert.False(t, row.Items[i].Overlaps(row.Items[j]), "trial %d: overlap in row", trial)
				}
				if i > 0 {
					assert.False(t, row.Items[i].Start.Before(row.Items[i-1].Start), "trial %d: row not ordered", trial)
				}
			}
		}
		assert.Equal(t, n, placed, "trial %d: every item placed once", trial)
		assert.Equal(t, MaxOverlap(items), len(res.Rows), "trial %d: row count not optimal", trial)
	}
}

func TestPackMemo_ReusesResult(t *testing.T) {
	memo := NewPackMemo(2)
	items := []model.Booking{booking("a", at(0, 9, 0), at(0, 10, 0))}

	first := memo.Pack(items)
	second := memo.Pack(append([]model.Booking(nil), items...))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, memo.Len())

	memo.Pack([]model.Booking{booking("b", at(0, 9, 0), at(0, 10, 0))})
	memo.Pack([]model.Booking{booking("c", at(0, 9, 0), at(0, 10, 0))})
	assert.LessOrEqual(t, memo.Len(), 2)

	var nilMemo *PackMemo
	assert.Len(t, nilMemo.Pack(items).Rows, 1)
}
