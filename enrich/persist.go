package enrich

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hazyhaar/carcatalog/carquery"
)

// Persisted layout:
//
//	{"apiData":[[3,{...}],[7,{...}]]}
//
// Pairs are written in ascending id order; readers must not rely on it.
type snapshot struct {
	APIData []json.RawMessage `json:"apiData"`
}

// Encode serializes cache into the persisted layout.
func Encode(cache map[int]*carquery.Enrichment) (string, error) {
	ids := make([]int, 0, len(cache))
	for id := range cache {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	snap := snapshot{APIData: make([]json.RawMessage, 0, len(ids))}
	for _, id := range ids {
		pair, err := json.Marshal([2]any{id, cache[id]})
		if err != nil {
			return "", fmt.Errorf("enrich: encode id %d: %w", id, err)
		}
		snap.APIData = append(snap.APIData, pair)
	}

	out, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("enrich: encode: %w", err)
	}
	return string(out), nil
}

// Decode parses the persisted layout. A blob without "apiData" is an
// empty cache; anything unreadable wraps ErrPersistenceCorrupt.
func Decode(blob string) (map[int]*carquery.Enrichment, error) {
	var snap snapshot
	if err := json.Unmarshal([]byte(blob), &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceCorrupt, err)
	}

	cache := make(map[int]*carquery.Enrichment, len(snap.APIData))
	for i, raw := range snap.APIData {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("%w: entry %d is not an [id, record] pair", ErrPersistenceCorrupt, i)
		}
		var id int
		if err := json.Unmarshal(pair[0], &id); err != nil {
			return nil, fmt.Errorf("%w: entry %d: id: %v", ErrPersistenceCorrupt, i, err)
		}
		rec := &carquery.Enrichment{}
		if err := json.Unmarshal(pair[1], rec); err != nil {
			return nil, fmt.Errorf("%w: entry %d: record: %v", ErrPersistenceCorrupt, i, err)
		}
		if rec.Trims == nil {
			rec.Trims = []carquery.Trim{}
		}
		cache[id] = rec
	}
	return cache, nil
}
