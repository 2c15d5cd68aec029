package watch

import (
	"context"
	"time"

	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
)

// Trigger describes why a rebuild fired.
type Trigger struct {
	// Cause is "quiet" when the quiet window elapsed and "max_delay" when
	// requests kept arriving past the maximum delay.
	Cause        string
	Reason       string
	RequestCount int
	FirstRequest time.Time
}

// Debouncer coalesces bursts of rebuild requests into single rebuilds:
//   - quiet window debounce
//   - max delay (cannot postpone indefinitely)
//   - requests arriving while a rebuild runs queue exactly one follow-up
type Debouncer struct {
	quiet    time.Duration
	maxDelay time.Duration
	requests chan string
	ready    chan struct{}
}

// NewDebouncer creates a debouncer.
func NewDebouncer(quiet, maxDelay time.Duration) (*Debouncer, error) {
	if quiet <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").Build()
	}
	if maxDelay <= 0 {
		return nil, ferrors.ValidationError("max delay must be > 0").Build()
	}
	return &Debouncer{
		quiet:    quiet,
		maxDelay: maxDelay,
		requests: make(chan string, 64),
		ready:    make(chan struct{}),
	}, nil
}

// Request asks for a rebuild. It never blocks; when the request buffer is
// full the pending rebuild already covers this request.
func (d *Debouncer) Request(reason string) {
	select {
	case d.requests <- reason:
	default:
	}
}

// Ready is closed once Run is accepting requests.
func (d *Debouncer) Ready() <-chan struct{} {
	return d.ready
}

// Run calls fire for each debounced burst until ctx ends. fire runs on the
// calling goroutine, so rebuilds never overlap.
func (d *Debouncer) Run(ctx context.Context, fire func(ctx context.Context, t Trigger)) error {
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}
	close(d.ready)

	for {
		var pending Trigger
		select {
		case <-ctx.Done():
			return nil
		case reason := <-d.requests:
			pending = Trigger{Reason: reason, RequestCount: 1, FirstRequest: time.Now()}
		}

		quiet := time.NewTimer(d.quiet)
		deadline := time.NewTimer(d.maxDelay)
	collect:
		for {
			select {
			case <-ctx.Done():
				quiet.Stop()
				deadline.Stop()
				return nil
			case reason := <-d.requests:
				pending.Reason = reason
				pending.RequestCount++
				quiet.Reset(d.quiet)
			case <-quiet.C:
				pending.Cause = "quiet"
				break collect
			case <-deadline.C:
				pending.Cause = "max_delay"
				break collect
			}
		}
		quiet.Stop()
		deadline.Stop()

		fire(ctx, pending)
	}
}
