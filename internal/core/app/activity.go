package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cprqa/internal/core/ports"
	"cprqa/internal/data/queue"
	"cprqa/internal/shared/observability"
)

const (
	activityBatchSize     = 16
	activityFlushInterval = 100 * time.Millisecond
)

// ActivityRecorder writes the activity log in the background. Record never
// fails the caller: a full queue or a store error is logged and counted.
type ActivityRecorder struct {
	store ports.ActivityStore
	queue *queue.Memory[ports.ActivityEvent]

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewActivityRecorder(store ports.ActivityStore, capacity int) *ActivityRecorder {
	ctx, cancel := context.WithCancel(context.Background())
	r := &ActivityRecorder{
		store:  store,
		queue:  queue.NewMemory[ports.ActivityEvent](capacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

func (r *ActivityRecorder) Record(ctx context.Context, tenant, typ string, detail map[string]any) {
	trace.SpanFromContext(ctx).AddEvent("activity", trace.WithAttributes(attribute.String("type", typ)))

	if !r.queue.Offer(ports.ActivityEvent{Tenant: tenant, Type: typ, Detail: detail}) {
		observability.ActivityFailuresTotal.Inc()
		slog.Warn("activity dropped", "type", typ, "tenant", tenant, "queue_len", r.queue.Len())
	}
}

func (r *ActivityRecorder) run(ctx context.Context) {
	defer close(r.done)

	for {
		batch, err := r.queue.DequeueBatch(ctx, activityBatchSize, activityFlushInterval)
		for _, ev := range batch {
			if appendErr := r.store.AppendActivity(context.Background(), ev.Tenant, ev.Type, ev.Detail); appendErr != nil {
				observability.ActivityFailuresTotal.Inc()
				slog.Warn("activity write failed", "type", ev.Type, "tenant", ev.Tenant, "error", appendErr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			slog.Warn("activity queue dequeue failed", "error", err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be written. If
// ctx ends first the worker is cancelled and remaining events are lost.
func (r *ActivityRecorder) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		_ = r.queue.Close()
		select {
		case <-r.done:
		case <-ctx.Done():
			r.cancel()
			<-r.done
			err = ctx.Err()
		}
		r.cancel()
	})
	return err
}
