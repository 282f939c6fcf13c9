// Package notify delivers requester notifications through a broker or the
// log, after a short delay and off the ingestion path.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deskflow/ticket-ingest/internal/domain"
	"github.com/deskflow/ticket-ingest/internal/port"
)

// LogNotifier writes notifications to the log. It is used when no broker
// is configured.
type LogNotifier struct {
	logger *zap.Logger
}

var _ port.Notifier = (*LogNotifier)(nil)

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Send(_ context.Context, n port.Notification) error {
	l.logger.Info("notification",
		zap.String("ticket_code", n.TicketCode),
		zap.String("to", n.To),
		zap.String("subject", n.Subject))
	return nil
}

// Acknowledgement builds the message telling a requester their ticket was
// opened. The subject and header carry the code so replies correlate.
func Acknowledgement(ticket *domain.Ticket, to, from, header string) port.Notification {
	subject := strings.TrimSpace(ticket.Subject)
	if subject == "" {
		subject = "Solicitud recibida"
	}
	return port.Notification{
		TicketID:   ticket.ID,
		TicketCode: ticket.Code,
		To:         to,
		From:       from,
		Subject:    fmt.Sprintf("[%s] %s", ticket.Code, subject),
		Body: fmt.Sprintf("Hemos recibido su solicitud y se ha registrado con el código %s.\n"+
			"Responda a este correo conservando el asunto para añadir información.", ticket.Code),
		Headers:   map[string]string{header: ticket.Code, "Auto-Submitted": "auto-generated"},
		CreatedAt: time.Now().UTC(),
	}
}

// Dispatcher sends notifications asynchronously after a delay. Failures are
// logged and never surface to the caller.
type Dispatcher struct {
	notifier port.Notifier
	delay    time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher builds a Dispatcher around notifier.
func NewDispatcher(notifier port.Notifier, delay, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		delay:    delay,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Schedule queues n for delivery. It returns immediately.
func (d *Dispatcher) Schedule(n port.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("notification dropped after shutdown", zap.String("ticket_code", n.TicketCode))
		return
	}
	d.wg.Add(1)
	go d.deliver(n)
}

func (d *Dispatcher) deliver(n port.Notification) {
	defer d.wg.Done()
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		select {
		case <-timer.C:
		case <-d.stop:
			timer.Stop()
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.notifier.Send(ctx, n); err != nil {
		d.logger.Error("notification failed", zap.String("ticket_code", n.TicketCode), zap.Error(err))
	}
}

// Close stops accepting work, cuts pending delays short and waits for
// in-flight deliveries.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.stop)
	d.mu.Unlock()
	d.wg.Wait()
}
