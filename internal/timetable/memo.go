package timetable

import (
	"github.com/mitchellh/hashstructure/v2"

	appLog "timetable/internal/log"
	"timetable/internal/model"
)

const defaultMemoLimit = 512

// PackMemo caches per-group packing results by a hash of the group's items.
// It is not safe for concurrent use; a Table owns one and guards it.
type PackMemo struct {
	limit   int
	entries map[uint64]PackResult
}

func NewPackMemo(limit int) *PackMemo {
	if limit <= 0 {
		limit = defaultMemoLimit
	}
	return &PackMemo{limit: limit, entries: make(map[uint64]PackResult)}
}

// memoItem is the hashed projection of a booking. time.Time is flattened to
// nanoseconds plus zone name since its fields are unexported.
type memoItem struct {
	Key, Title, Location, SourceID, UID string
	AllDay                              bool
	Start, End                          int64
	Zone                                string
}

func (m *PackMemo) Pack(items []model.Booking) PackResult {
	if m == nil {
		return Pack(items)
	}

	proj := make([]memoItem, len(items))
	for i, it := range items {
		proj[i] = memoItem{
			Key: it.Key, Title: it.Title, Location: it.Location,
			SourceID: it.SourceID, UID: it.UID, AllDay: it.AllDay,
			Start: it.Start.UnixNano(), End: it.End.UnixNano(),
			Zone: it.Start.Location().String(),
		}
	}
	key, err := hashstructure.Hash(proj, hashstructure.FormatV2, nil)
	if err != nil {
		appLog.Error("pack memo: hash failed", err, "items", len(items))
		return Pack(items)
	}
	if res, ok := m.entries[key]; ok {
		return res
	}

	res := Pack(items)
	if len(m.entries) >= m.limit {
		// Coarse eviction; the working set is one window's groups.
		m.entries = make(map[uint64]PackResult)
	}
	m.entries[key] = res
	return res
}

func (m *PackMemo) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}
