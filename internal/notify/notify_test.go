package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/port"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, n port.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestAcknowledgementCarriesCode(t *testing.T) {
	ticket := &domain.Ticket{ID: "t1", Code: "TCK-0001", Subject: "Impresora"}
	n := Acknowledgement(ticket, "ana@gmail.com", "soporte@example.com", "X-Ticket-ID")

	assert.Equal(t, "[TCK-0001] Impresora", n.Subject)
	assert.Equal(t, "TCK-0001", n.Headers["X-Ticket-ID"])
	assert.Equal(t, "ana@gmail.com", n.To)
	assert.Contains(t, n.Body, "TCK-0001")
}

func TestDispatcherDeliversAfterDelay(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, 20*time.Millisecond, time.Second, zap.NewNop())

	d.Schedule(port.Notification{TicketCode: "TCK-0001"})
	assert.Equal(t, 0, rec.count())

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	d.Close()
}

func TestDispatcherCloseFlushesPending(t *testing.T) {
	rec := &recordingNotifier{err: errors.New("broker down")}
	d := NewDispatcher(rec, time.Hour, time.Second, zap.NewNop())

	d.Schedule(port.Notification{TicketCode: "TCK-0001"})
	d.Schedule(port.Notification{TicketCode: "TCK-0002"})
	d.Close()

	assert.Equal(t, 2, rec.count())

	d.Schedule(port.Notification{TicketCode: "TCK-0003"})
	assert.Equal(t, 2, rec.count())
}
