package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	ingestCount   map[string]int64
	requestMillis map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		ingestCount:   make(map[string]int64),
		requestMillis: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordIngestion counts one processed inbound message by outcome action.
func (m *Metrics) RecordIngestion(action string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingestCount[action]++
}

// IngestionCount returns the counter for an outcome action.
func (m *Metrics) IngestionCount(action string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ingestCount[action]
}

// Snapshot copies all counters for exposition.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	out := map[string]map[string]int64{
		"requests":  {},
		"errors":    {},
		"ingestion": {},
	}
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copyInto(out["requests"], m.requestCount)
	copyInto(out["errors"], m.errorCount)
	copyInto(out["ingestion"], m.ingestCount)
	return out
}

// Keys lists request keys in stable order, mostly for debugging output.
func (m *Metrics) Keys() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.requestCount))
	for k := range m.requestCount {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyInto(dst, src map[string]int64) {
	for k, v := range src {
		dst[k] = v
	}
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
