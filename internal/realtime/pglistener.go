package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const NotifyChannel = "toolhub_changes"

// Listener relays postgres NOTIFY payloads into the hub and reconnects with
// exponential backoff when the connection drops.
type Listener struct {
	dsn     string
	channel string
	hub     *Hub
	route   Router
	log     *zap.Logger
	connect func(ctx context.Context, dsn string) (*pgx.Conn, error)
}

func NewListener(dsn string, hub *Hub, log *zap.Logger) *Listener {
	return &Listener{
		dsn:     dsn,
		channel: NotifyChannel,
		hub:     hub,
		route:   DefaultRouter,
		log:     log.Named("realtime.listener"),
		connect: pgx.Connect,
	}
}

func (l *Listener) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	for {
		err := l.listen(ctx, b)
		if ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		l.log.Warn("listen connection lost", zap.Error(err), zap.Duration("retry_in", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (l *Listener) listen(ctx context.Context, b *backoff.ExponentialBackOff) error {
	conn, err := l.connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	b.Reset()
	l.log.Info("listening", zap.String("channel", l.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		change, err := decodeNotification(n.Payload)
		if err != nil {
			l.log.Warn("discarding malformed notification", zap.Error(err))
			continue
		}
		for _, name := range l.route(change) {
			l.hub.Publish(name, change)
		}
	}
}

func decodeNotification(payload string) (Change, error) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		return Change{}, err
	}
	if change.Table == "" || change.Type == "" {
		return Change{}, errors.New("notification missing table or type")
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}
	return change, nil
}
