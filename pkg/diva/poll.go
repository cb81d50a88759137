package diva

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
)

// WaitStrategy pauses between two polls of a pending result. Wait must return
// early with ctx's error when ctx is done. ResolveResult calls Reset before the
// first poll of every link, so one strategy can serve many jobs in sequence.
// Implementations need not be safe for concurrent use.
type WaitStrategy interface {
	Wait(ctx context.Context) error
	Reset()
}

// ErrPollExhausted is returned by a wait strategy whose backoff gave up.
var ErrPollExhausted = errors.New("poll backoff exhausted")

type backOffWait struct {
	b backoff.BackOff
}

// NewBackOffWait waits for the durations produced by b. When b returns
// backoff.Stop the wait fails with ErrPollExhausted.
func NewBackOffWait(b backoff.BackOff) WaitStrategy {
	b.Reset()
	return &backOffWait{b: b}
}

// NewFixedWait waits the same interval before every poll.
func NewFixedWait(interval time.Duration) WaitStrategy {
	return NewBackOffWait(backoff.NewConstantBackOff(interval))
}

func (w *backOffWait) Reset() {
	w.b.Reset()
}

func (w *backOffWait) Wait(ctx context.Context) error {
	d := w.b.NextBackOff()
	if d == backoff.Stop {
		return ErrPollExhausted
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type pollSettings struct {
	wait    WaitStrategy
	timeout time.Duration
	onPoll  func(attempt int, doc *ResultDocument)
}

// PollOption customises a single ResolveResult call.
type PollOption func(*pollSettings)

// WithWaitStrategy replaces the default fixed-interval wait.
func WithWaitStrategy(w WaitStrategy) PollOption {
	return func(p *pollSettings) { p.wait = w }
}

// WithPollTimeout bounds the whole resolve call. Zero or negative disables the bound.
func WithPollTimeout(d time.Duration) PollOption {
	return func(p *pollSettings) { p.timeout = d }
}

// WithPollObserver is called after every fetch with the 1-based attempt number.
func WithPollObserver(fn func(attempt int, doc *ResultDocument)) PollOption {
	return func(p *pollSettings) { p.onPoll = fn }
}

// ResolveResult implements Service
func (s *service) ResolveResult(ctx context.Context, link string, opts ...PollOption) (*ResultDocument, error) {
	const op = "resolve result"

	settings := pollSettings{timeout: s.config.PollTimeout}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.wait == nil {
		settings.wait = NewFixedWait(s.config.PollInterval)
	}
	settings.wait.Reset()
	if settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindCancelled, op, err, "stopped polling %s after %d attempts", link, attempt-1)
		}

		doc, err := s.fetchResult(ctx, link)
		if err != nil {
			return nil, err
		}
		if settings.onPoll != nil {
			settings.onPoll(attempt, doc)
		}
		if doc.Status != StatusPlanned {
			return doc, nil
		}

		if err := settings.wait.Wait(ctx); err != nil {
			return nil, newError(KindCancelled, op, err, "stopped polling %s after %d attempts", link, attempt)
		}
	}
}
