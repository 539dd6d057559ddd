package versions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"grimm.is/ruledit/internal/clock"
)

// MemoryStore is an in-memory Store for tests and throwaway servers.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	latest  map[string]int
	clock   clock.Clock
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		latest: make(map[string]int),
		clock:  clock.Or(clk),
	}
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.clock.Now().UTC()
	}
	s.latest[rec.DeviceName]++
	rec.Version = s.latest[rec.DeviceName]
	rec.ID = int64(len(s.records) + 1)
	s.records = append(s.records, *rec)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, device string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Record{}
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if device != "" && rec.DeviceName != device {
			continue
		}
		rec.ConfigData = ""
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 1 || id > int64(len(s.records)) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	rec := s.records[id-1]
	return &rec, nil
}

func (s *MemoryStore) Devices(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.latest))
	for name := range s.latest {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
