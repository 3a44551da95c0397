// Package poller implements the dashboard-side change-feed consumer: a
// fixed-interval polling loop over the sessions/changes endpoint that keeps a
// local view of sessions and open-conversation messages fresh without a push
// channel.
//
// Checkpoint discipline: every successful poll returns the server's clock,
// and that value (never the local clock) becomes the next checkpoint. A failed
// poll leaves the checkpoint untouched so the missed window is re-covered by
// the next attempt.
//
// Overlap guard: ticks that fire while a poll is still in flight are skipped,
// so a slow backend produces fewer polls rather than a pile-up.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/automize/chat-support-backend/internal/domain"
	"github.com/automize/chat-support-backend/internal/services"
)

// Fetcher retrieves one change-feed batch. The production implementation
// calls GET /sessions/changes; tests substitute a fake.
type Fetcher interface {
	FetchChanges(ctx context.Context, since time.Time, openSession string) (*services.ChangeSet, error)
}

// Sink receives the merged updates from each successful poll.
type Sink interface {
	// ApplySessions replaces or inserts the given session summaries in the
	// local view.
	ApplySessions(sessions []services.SessionSummary)
	// AppendMessages appends new messages for the open session.
	AppendMessages(messages []domain.Message)
}

// Poller drives the fixed-interval polling loop. Construct with New and run
// with Run; Suspend/Resume pause the loop while a browser tab is hidden and
// trigger an immediate out-of-cycle poll on return.
type Poller struct {
	fetcher  Fetcher
	sink     Sink
	interval time.Duration

	mu          sync.Mutex
	checkpoint  time.Time
	openSession string
	suspended   bool
	inFlight    bool

	// resumeC wakes the loop for the immediate catch-up poll after Resume.
	resumeC chan struct{}
}

// New constructs a Poller. A non-positive interval defaults to 5 seconds.
func New(fetcher Fetcher, sink Sink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		fetcher:  fetcher,
		sink:     sink,
		interval: interval,
		resumeC:  make(chan struct{}, 1),
	}
}

// SetOpenSession names the session whose messages should be included in
// subsequent polls. An empty token means no conversation is open.
func (p *Poller) SetOpenSession(token string) {
	p.mu.Lock()
	p.openSession = token
	p.mu.Unlock()
}

// Checkpoint returns the current checkpoint (zero before the first
// successful poll).
func (p *Poller) Checkpoint() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkpoint
}

// Suspend pauses polling. Ticks are ignored until Resume.
func (p *Poller) Suspend() {
	p.mu.Lock()
	p.suspended = true
	p.mu.Unlock()
}

// Resume re-enables polling and triggers an immediate out-of-cycle poll so
// the view catches up without waiting for the next tick.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.suspended = false
	p.mu.Unlock()

	select {
	case p.resumeC <- struct{}{}:
	default:
	}
}

// Run polls until ctx is canceled. An initial poll fires immediately so the
// view is populated before the first tick.
func (p *Poller) Run(ctx context.Context) {
	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		case <-p.resumeC:
			p.Poll(ctx)
		}
	}
}

// Poll performs a single poll cycle: fetch changes since the checkpoint,
// apply them to the sink, and advance the checkpoint to the server's clock.
// It is a no-op while suspended or while another poll is in flight.
func (p *Poller) Poll(ctx context.Context) {
	p.mu.Lock()
	if p.suspended || p.inFlight {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	since := p.checkpoint
	openSession := p.openSession
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	set, err := p.fetcher.FetchChanges(ctx, since, openSession)
	if err != nil {
		// Checkpoint stays put; the next poll re-covers this window.
		log.Warn().Err(err).Time("since", since).Msg("change-feed poll failed")
		return
	}

	if len(set.Sessions) > 0 {
		p.sink.ApplySessions(set.Sessions)
	}
	if len(set.NewMessages) > 0 {
		p.sink.AppendMessages(set.NewMessages)
	}

	p.mu.Lock()
	p.checkpoint = set.ServerTime
	p.mu.Unlock()
}
