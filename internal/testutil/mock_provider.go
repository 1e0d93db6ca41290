// Package testutil provides shared test utilities for ledgerlens.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*MockProvider)(nil)

// Publication records one Publish call.
type Publication struct {
	RunID  string
	Tables []string
}

// MockProvider is an in-memory Provider implementation for testing.
type MockProvider struct {
	mu           sync.Mutex
	sources      *types.RawSnapshot
	tables       map[string]mart.Table
	publications []Publication
	runs         map[string]types.RunRecord
	locks        map[string]time.Time
	failures     map[string]error // op name -> injected error
	now          func() time.Time
}

// NewMockProvider creates a new in-memory mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		sources:  &types.RawSnapshot{},
		tables:   make(map[string]mart.Table),
		runs:     make(map[string]types.RunRecord),
		locks:    make(map[string]time.Time),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// SetSources replaces the raw snapshot returned by LoadSources.
func (m *MockProvider) SetSources(raw *types.RawSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = raw
}

// FailOn makes every call of op (the method name, e.g. "Publish") return err.
// A nil err clears the injection.
func (m *MockProvider) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *MockProvider) injected(op string) error {
	return m.failures[op]
}

func (m *MockProvider) LoadSources(_ context.Context) (*types.RawSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("LoadSources"); err != nil {
		return nil, err
	}
	return m.sources, nil
}

func (m *MockProvider) Publish(_ context.Context, runID string, tables []mart.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("Publish"); err != nil {
		return err
	}
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	pub := Publication{RunID: runID}
	for _, t := range tables {
		m.tables[t.Name] = t
		pub.Tables = append(pub.Tables, t.Name)
	}
	m.publications = append(m.publications, pub)
	return nil
}

func (m *MockProvider) ReadTable(_ context.Context, name string) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReadTable"); err != nil {
		return nil, err
	}
	s, err := mart.Lookup(name)
	if err != nil {
		return nil, err
	}
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", name, provider.ErrNotFound)
	}
	return s.Records(t.Rows)
}

// Table returns the typed rows last published under name.
func (m *MockProvider) Table(name string) (mart.Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	return t, ok
}

// Publications returns every Publish call in order.
func (m *MockProvider) Publications() []Publication {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Publication, len(m.publications))
	copy(out, m.publications)
	return out
}

func (m *MockProvider) PutRun(_ context.Context, run types.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("PutRun"); err != nil {
		return err
	}
	m.runs[run.RunID] = run
	return nil
}

func (m *MockProvider) GetRun(_ context.Context, runID string) (*types.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %q: %w", runID, provider.ErrNotFound)
	}
	return &r, nil
}

func (m *MockProvider) ListRuns(_ context.Context, limit int) ([]types.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].RunID > out[j].RunID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockProvider) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("AcquireLock"); err != nil {
		return false, err
	}
	if exp, held := m.locks[key]; held && m.now().Before(exp) {
		return false, nil
	}
	m.locks[key] = m.now().Add(ttl)
	return true, nil
}

func (m *MockProvider) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// Locks returns the currently held lock keys, sorted.
func (m *MockProvider) Locks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k, exp := range m.locks {
		if m.now().Before(exp) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *MockProvider) Start(_ context.Context) error { return nil }
func (m *MockProvider) Stop(_ context.Context) error  { return nil }

func (m *MockProvider) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.injected("Ping")
}
