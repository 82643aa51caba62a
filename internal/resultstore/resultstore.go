// Package resultstore provides the Result Store (C8): append-only
// persistence of MeasurementResults scoped to a session, with lookups by
// item_name or item_no ordinal for use_result substitution. Spec §4.8.
package resultstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/webpdtool/testcore/internal/testplan"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by GetByName/GetByOrdinal when no result
	// exists yet for the given key within the session.
	ErrNotFound = errors.New("result not found")
	// ErrDuplicateAppend is returned by InMemoryStore.Append when it is
	// called twice for the same (session, item_no) pair.
	ErrDuplicateAppend = errors.New("result already recorded for item")
)

// Store is the Result Store contract (spec §4.8). Concrete adapters
// (in-memory, Postgres) live in this package; the Session Engine depends on
// the narrower session.ResultAppender subset.
type Store interface {
	// Append records result under sessionID. For a (sessionID,
	// result.ItemNo) pair already recorded, InMemoryStore returns
	// ErrDuplicateAppend and PostgresStore overwrites the stored row.
	Append(ctx context.Context, sessionID string, result testplan.MeasurementResult) error
	// GetByName returns the most recent result for itemName within sessionID.
	GetByName(ctx context.Context, sessionID, itemName string) (testplan.MeasurementResult, error)
	// GetByOrdinal returns the result for itemNo within sessionID.
	GetByOrdinal(ctx context.Context, sessionID string, itemNo int) (testplan.MeasurementResult, error)
	// All returns every result recorded for sessionID, in append order.
	All(ctx context.Context, sessionID string) ([]testplan.MeasurementResult, error)
}

// InMemoryStore is the default Store: a process-local, session-scoped cache.
// Sufficient for a single-process test runner; PostgresStore is the durable
// alternative (spec §9 domain stack).
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionResults
}

type sessionResults struct {
	order  []testplan.MeasurementResult
	byName map[string]testplan.MeasurementResult
	byNo   map[int]testplan.MeasurementResult
}

// NewInMemoryStore constructs an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*sessionResults)}
}

func (s *InMemoryStore) entryFor(sessionID string) *sessionResults {
	entry, ok := s.sessions[sessionID]
	if !ok {
		entry = &sessionResults{
			byName: make(map[string]testplan.MeasurementResult),
			byNo:   make(map[int]testplan.MeasurementResult),
		}
		s.sessions[sessionID] = entry
	}

	return entry
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, result testplan.MeasurementResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entryFor(sessionID)

	if _, exists := entry.byNo[result.ItemNo]; exists {
		return fmt.Errorf("%w: session=%s item_no=%d", ErrDuplicateAppend, sessionID, result.ItemNo)
	}

	entry.order = append(entry.order, result)
	entry.byName[result.ItemName] = result
	entry.byNo[result.ItemNo] = result

	return nil
}

// GetByName implements Store.
func (s *InMemoryStore) GetByName(_ context.Context, sessionID, itemName string) (testplan.MeasurementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return testplan.MeasurementResult{}, fmt.Errorf("%w: session=%s item_name=%s", ErrNotFound, sessionID, itemName)
	}

	result, ok := entry.byName[itemName]
	if !ok {
		return testplan.MeasurementResult{}, fmt.Errorf("%w: session=%s item_name=%s", ErrNotFound, sessionID, itemName)
	}

	return result, nil
}

// GetByOrdinal implements Store.
func (s *InMemoryStore) GetByOrdinal(_ context.Context, sessionID string, itemNo int) (testplan.MeasurementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return testplan.MeasurementResult{}, fmt.Errorf("%w: session=%s item_no=%d", ErrNotFound, sessionID, itemNo)
	}

	result, ok := entry.byNo[itemNo]
	if !ok {
		return testplan.MeasurementResult{}, fmt.Errorf("%w: session=%s item_no=%d", ErrNotFound, sessionID, itemNo)
	}

	return result, nil
}

// All implements Store.
func (s *InMemoryStore) All(_ context.Context, sessionID string) ([]testplan.MeasurementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	out := make([]testplan.MeasurementResult, len(entry.order))
	copy(out, entry.order)

	return out, nil
}

// PriorResultsAdapter adapts a Store, scoped to one sessionID, to
// resolver.PriorResults: lookup by item_name first, then by the textual
// form of item_no (spec §4.6).
type PriorResultsAdapter struct {
	Store     Store
	SessionID string
}

// Lookup satisfies resolver.PriorResults.
func (a PriorResultsAdapter) Lookup(key string) (value string, isNull bool, found bool) {
	ctx := context.Background()

	result, err := a.Store.GetByName(ctx, a.SessionID, key)
	if err != nil {
		if itemNo, convErr := strconv.Atoi(key); convErr == nil {
			result, err = a.Store.GetByOrdinal(ctx, a.SessionID, itemNo)
		}
	}

	if err != nil {
		return "", false, false
	}

	if result.IsNull {
		return "", true, true
	}

	return result.MeasuredText, false, true
}
