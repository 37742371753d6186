package outbox

import (
	"context"
	"time"

	"github.com/wb-go/wbf/zlog"

	"coursebook/internal/rabbit"
	"coursebook/internal/repo"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
)

// Dispatcher relays outbox rows to the broker. Business transactions append
// rows; the dispatcher polls for undispatched ones, publishes them and stamps
// them dispatched. A row is only marked after a successful publish, so a crash
// in between can produce a duplicate delivery but never a lost one.
type Dispatcher struct {
	rmq    *rabbit.Client
	repo   repo.Repository
	done   chan struct{}
	cancel context.CancelFunc
}

func NewDispatcher(rmq *rabbit.Client, repo repo.Repository) *Dispatcher {
	return &Dispatcher{
		rmq:  rmq,
		repo: repo,
		done: make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	zlog.Logger.Info().Msg("Outbox dispatcher started")

	go func() {
		defer close(d.done)

		ticker := time.NewTicker(defaultPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-cctx.Done():
				zlog.Logger.Info().Msg("Outbox dispatcher stopped by context")
				return
			case <-ticker.C:
				d.dispatchBatch(cctx)
			}
		}
	}()
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	msgs, err := d.repo.FetchUndispatched(ctx, defaultBatchSize)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to fetch outbox messages")
		return
	}

	for _, msg := range msgs {
		if err := d.rmq.Publish(msg.Body); err != nil {
			zlog.Logger.Error().
				Err(err).
				Int64("outbox_id", msg.ID).
				Msg("failed to publish outbox message, will retry")
			return
		}
		if err := d.repo.MarkDispatched(ctx, msg.ID); err != nil {
			zlog.Logger.Error().
				Err(err).
				Int64("outbox_id", msg.ID).
				Msg("failed to mark outbox message dispatched")
			return
		}
		zlog.Logger.Debug().
			Int64("outbox_id", msg.ID).
			Str("queue", msg.QueueName).
			Msg("outbox message dispatched")
	}
}

func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}
