package publishers

import (
	"context"
	"errors"
	"fmt"

	"github.com/samvad-hq/gallery-relay/internal/logger"
)

// kind validates and opens one sink type.
type kind struct {
	check func(*SinkConfig) error
	open  func(context.Context, SinkConfig, logger.Logger) (Publisher, error)
}

var kinds = map[string]kind{
	TypeHTTP:      {check: checkWebhook, open: openWebhook},
	TypeSQS:       {check: checkSQS, open: openSQS},
	TypeSNS:       {check: checkSNS, open: openSNS},
	TypeGCPPubSub: {check: checkPubSub, open: openPubSub},
}

// Open connects every sink and returns them behind one Fanout. When a sink
// fails to open, the ones already opened are closed.
func Open(ctx context.Context, sinks []SinkConfig, log logger.Logger) (*Fanout, error) {
	log = logger.Ensure(log)
	opened := make([]Publisher, 0, len(sinks))
	for _, sink := range sinks {
		pub, err := openSink(ctx, sink, log)
		if err != nil {
			return nil, errors.Join(err, NewFanout(opened).Close())
		}
		opened = append(opened, pub)
	}
	return NewFanout(opened), nil
}

func openSink(ctx context.Context, sink SinkConfig, log logger.Logger) (Publisher, error) {
	k, ok := kinds[sink.Type]
	if !ok {
		return nil, fmt.Errorf("publisher %q: unknown type %q", sink.ID, sink.Type)
	}
	if err := k.check(&sink); err != nil {
		return nil, fmt.Errorf("publisher %q: %w", sink.ID, err)
	}
	pub, err := k.open(ctx, sink, log)
	if err != nil {
		return nil, fmt.Errorf("open publisher %q: %w", sink.ID, err)
	}
	return pub, nil
}
