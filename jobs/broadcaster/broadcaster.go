package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"kobara/infra/outbox"
)

// Publisher delivers one event to the downstream bus.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// Config tunes the drain loop.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Broadcaster struct {
	outbox    *outbox.Outbox
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(ob *outbox.Outbox, pub Publisher, cfg Config, logger zerolog.Logger) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	return &Broadcaster{
		outbox:    ob,
		publisher: pub,
		cfg:       cfg,
		logger:    logger.With().Str("module", "broadcaster").Logger(),
	}
}

// ------------------------------------------------
// RUN LOOP
// ------------------------------------------------

// Run drains the outbox every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info().Dur("interval", b.cfg.Interval).Msg("broadcaster started")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("broadcaster stopped")
			return nil
		case <-ticker.C:
			if _, err := b.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Warn().Err(err).Msg("flush incomplete, retrying next tick")
			}
		}
	}
}

// ------------------------------------------------
// DRAIN LOGIC
// ------------------------------------------------

// Flush publishes pending events in trade order and returns how many
// were acknowledged. It stops at the first failed publish so that
// events never overtake each other.
func (b *Broadcaster) Flush(ctx context.Context) (int, error) {
	sent := 0
	err := b.outbox.ScanPending(b.cfg.BatchSize, func(rec outbox.Record) error {
		if err := b.outbox.UpdateState(rec.Seq, outbox.StateSent, rec.Retries); err != nil {
			return err
		}

		key := []byte(strconv.FormatUint(rec.Seq, 10))
		if err := b.publisher.Publish(ctx, key, rec.Payload); err != nil {
			if uerr := b.outbox.UpdateState(rec.Seq, outbox.StateFailed, rec.Retries+1); uerr != nil {
				b.logger.Error().Err(uerr).Uint64("trade_id", rec.Seq).Msg("mark failed")
			}
			return fmt.Errorf("publish trade %d: %w", rec.Seq, err)
		}

		if err := b.outbox.Ack(rec.Seq); err != nil {
			return err
		}
		sent++
		return nil
	})
	if sent > 0 {
		b.logger.Debug().Int("sent", sent).Msg("trade events published")
	}
	return sent, err
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
