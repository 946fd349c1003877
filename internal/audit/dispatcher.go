// Package audit delivers committed audit batches to an external sink.
// Delivery is fire-and-forget: the ledger's transactions never wait on the
// sink and a failing sink can only cost audit delivery, never a commit.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"splitledger/internal/store"
)

// Sink is the external audit recorder collaborator.
type Sink interface {
	Record(ctx context.Context, entries []store.AuditEntry) error
}

type Dispatcher struct {
	sink    Sink
	log     *zap.Logger
	queue   chan []store.AuditEntry
	done    chan struct{}
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(sink Sink, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		sink:    sink,
		log:     log,
		queue:   make(chan []store.AuditEntry, 256),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go d.run()
	return d
}

// Dispatch hands a committed batch to the delivery worker. It never
// blocks: when the queue is full or the dispatcher is closed the batch is
// dropped and logged. The in-transaction audit_logs rows remain the
// durable record either way.
func (d *Dispatcher) Dispatch(entries []store.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn("dispatcher closed, dropping batch",
			zap.Int("entries", len(entries)),
			zap.String("table", entries[0].TableName))
		return
	}
	select {
	case d.queue <- entries:
	default:
		d.log.Warn("audit queue full, dropping batch",
			zap.Int("entries", len(entries)),
			zap.String("table", entries[0].TableName))
	}
}

// Close stops accepting batches and drains whatever is queued. It is safe
// to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for batch := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.sink.Record(ctx, batch); err != nil {
			d.log.Warn("audit sink rejected batch",
				zap.Int("entries", len(batch)),
				zap.Error(err))
		}
		cancel()
	}
}
