package power

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/supporttools/host-rescue/pkg/types"
)

// TableReader reads the unit's ordered outlet-name table, one name per
// index. Indices are 1-based, matching the unit's own numbering.
type TableReader interface {
	OutletNames(ctx context.Context) ([]string, error)
}

// Resolver maps a human outlet label to the unit's internal numeric index.
// The index is resolved at most once per run and cached for the run's
// duration; it is never persisted.
type Resolver struct {
	reader TableReader

	mu    sync.Mutex
	cache map[string]int
}

// NewResolver creates a resolver over the given table reader.
func NewResolver(reader TableReader) *Resolver {
	return &Resolver{
		reader: reader,
		cache:  make(map[string]int),
	}
}

// ResolveIndex returns the 1-based index of the first outlet whose
// normalized stored name equals the normalized label. Matching is
// first-match, not best-match: duplicate labels resolve to the lowest index.
// Returns an error wrapping types.ErrOutletNotFound when the table is
// exhausted without a match.
func (r *Resolver) ResolveIndex(ctx context.Context, label string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index, ok := r.cache[label]; ok {
		return index, nil
	}

	names, err := r.reader.OutletNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read outlet-name table: %w", err)
	}

	want := normalizeOutletName(label)
	for i, name := range names {
		if normalizeOutletName(name) == want {
			index := i + 1
			r.cache[label] = index
			return index, nil
		}
	}

	return 0, fmt.Errorf("%w: %q not in %d-entry table", types.ErrOutletNotFound, label, len(names))
}

// normalizeOutletName strips surrounding whitespace and quote characters and
// case-folds, so labels differing only in case or quoting compare equal.
func normalizeOutletName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	return strings.ToLower(s)
}
