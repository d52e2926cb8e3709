package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore implements store.Store in memory for testing, with per-method
// error injection and call counting.
type MockStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	calls  map[string]int
	gets   map[string]int
	closed bool

	// Control error injection, keyed by method name ("Get", "Put", "List")
	ErrorOnMethod map[string]error
	// ErrorOnPutKey fails Put for one key only
	ErrorOnPutKey map[string]error
	// AfterPut runs after every successful Put, outside the store lock
	AfterPut func(key string)
}

// NewMockStore creates a new mock store instance
func NewMockStore() *MockStore {
	return &MockStore{
		data:          make(map[string][]byte),
		calls:         make(map[string]int),
		gets:          make(map[string]int),
		ErrorOnMethod: make(map[string]error),
		ErrorOnPutKey: make(map[string]error),
	}
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Get"]++
	m.gets[key]++
	if err := m.ErrorOnMethod["Get"]; err != nil {
		return nil, false, err
	}
	value, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *MockStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.calls["Put"]++
	if err := m.ErrorOnMethod["Put"]; err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.ErrorOnPutKey[key]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.data[key] = append([]byte(nil), value...)
	hook := m.AfterPut
	m.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return nil
}

func (m *MockStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["List"]++
	if err := m.ErrorOnMethod["List"]; err != nil {
		return nil, err
	}
	keys := []string{}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SetError injects err for method; nil clears it
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.ErrorOnMethod, method)
		return
	}
	m.ErrorOnMethod[method] = err
}

// Calls returns how many times method was invoked
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// Gets returns how many times key was read
func (m *MockStore) Gets(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[key]
}

// ResetCalls zeroes the call counters
func (m *MockStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.gets = make(map[string]int)
}

// Raw returns the stored bytes at key
func (m *MockStore) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

// Keys returns all stored keys with prefix, sorted
func (m *MockStore) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := []string{}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// FakeClock is a manually advanced clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock stopped at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
