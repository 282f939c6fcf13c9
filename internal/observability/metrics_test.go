package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "POST", 201, 5*time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, 5*time.Millisecond)
	m.RecordError("/tickets", "POST", "VALIDATION_FAILED")
	m.RecordIngestion("created")
	m.RecordIngestion("created")
	m.RecordIngestion("duplicate")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["requests"]["/tickets|POST|201"])
	assert.Equal(t, int64(1), snap["errors"]["/tickets|POST|VALIDATION_FAILED"])
	assert.Equal(t, int64(2), m.IngestionCount("created"))
	assert.Equal(t, int64(1), m.IngestionCount("duplicate"))
	assert.Equal(t, []string{"/tickets|POST|201"}, m.Keys())
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordIngestion("created")
	assert.Zero(t, m.IngestionCount("created"))
	assert.NotNil(t, m.Snapshot()["ingestion"])
}
