package engineapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/skeinlabs/skein/internal/event"
	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/metrics"
	"github.com/skeinlabs/skein/internal/wire"
)

// Msg is one item off the subscription. Exactly one field is set: a fresh
// snapshot right after every (re)connect, or a normalized stream event.
type Msg struct {
	Snapshot *graph.Snapshot
	Event    event.Event
}

// Subscriber maintains the long-lived event stream for one run.
//
// Within one connection, events are delivered in arrival order. Across a
// reconnect no ordering is guaranteed; the subscriber emits a fresh full
// snapshot first so consumers resynchronize before seeing further events.
type Subscriber struct {
	client *Client
	run    string
	unit   string
	out    chan Msg

	backoffMin time.Duration
	backoffMax time.Duration
}

// Subscribe creates a subscriber for one run and unit. Run must be called
// to start it.
func (c *Client) Subscribe(run, unit string) *Subscriber {
	return &Subscriber{
		client:     c,
		run:        run,
		unit:       unit,
		out:        make(chan Msg, 64),
		backoffMin: 500 * time.Millisecond,
		backoffMax: 15 * time.Second,
	}
}

// C delivers snapshots and events.
func (s *Subscriber) C() <-chan Msg {
	return s.out
}

// Run connects, streams, and reconnects until the context is cancelled.
// Malformed frames and payloads are dropped without breaking the
// connection; only transport failures trigger a reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.backoffMin

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := s.client.FetchSnapshot(ctx, s.run, s.unit)
		if err != nil {
			slog.Warn("snapshot fetch failed, retrying",
				"run", s.run, "error", err, "backoff", backoff)
			if !s.sleep(ctx, &backoff) {
				return ctx.Err()
			}
			continue
		}
		if !s.send(ctx, Msg{Snapshot: snap}) {
			return ctx.Err()
		}
		backoff = s.backoffMin

		err = s.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("event stream disconnected, reconnecting",
			"run", s.run, "error", err, "backoff", backoff)
		metrics.Reconnects.Inc()
		if !s.sleep(ctx, &backoff) {
			return ctx.Err()
		}
	}
}

// stream reads one connection until it fails.
func (s *Subscriber) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.client.baseURL+"/runs/"+s.run+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeEngineError(resp.StatusCode, nil)
	}

	slog.Info("event stream connected", "run", s.run)

	parser := wire.NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(string(buf[:n])) {
				metrics.FramesParsed.Inc()
				s.handleFrame(ctx, frame)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *Subscriber) handleFrame(ctx context.Context, frame wire.Frame) {
	if frame.Data == "" {
		return
	}
	ev, ok := event.NormalizeJSON([]byte(frame.Data))
	if !ok {
		metrics.EventsDiscarded.Inc()
		return
	}
	metrics.EventsNormalized.WithLabelValues(ev.Envelope().Type).Inc()
	s.send(ctx, Msg{Event: ev})
}

func (s *Subscriber) send(ctx context.Context, m Msg) bool {
	select {
	case s.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// sleep waits out the current backoff and doubles it up to the cap.
// Returns false when the context ended first.
func (s *Subscriber) sleep(ctx context.Context, backoff *time.Duration) bool {
	t := time.NewTimer(*backoff)
	defer t.Stop()

	*backoff *= 2
	if *backoff > s.backoffMax {
		*backoff = s.backoffMax
	}

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
