package consumer

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// loop reads messages until ctx is done and hands each to handle. Handlers
// log their own failures; a bad message never stops the loop.
func loop(ctx context.Context, r messageReader, log zerolog.Logger, handle func(context.Context, kafka.Message)) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("error reading message")
			continue
		}
		handle(ctx, m)
	}
}
