// Package slides is the single-slot mailbox behind the slide-control long
// poll. It is best-effort: a command posted while nobody listens waits in
// the slot until the next poll, and a second post before that poll
// overwrites it.
package slides

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/voiceforth/internal/logging"
	"github.com/mohammad-safakhou/voiceforth/internal/telemetry"
)

// Mirror receives a copy of every posted command, e.g. to fan it out to
// other processes. Failures are logged and otherwise ignored.
type Mirror interface {
	Mirror(ctx context.Context, cmd string) error
}

// Options configures a Mailbox.
type Options struct {
	Mirror  Mirror
	Metrics *telemetry.Metrics
	Logger  *zap.Logger
}

// Mailbox holds at most one pending command and the polls waiting for one.
type Mailbox struct {
	mirror  Mirror
	metrics *telemetry.Metrics
	log     *zap.Logger

	mu         sync.Mutex
	pending    string
	hasPending bool
	listeners  []*Listener
}

// Listener is one registered poll. C yields exactly one command.
type Listener struct {
	c chan string
}

// C is answered once, when a command is delivered to this listener.
func (l *Listener) C() <-chan string { return l.c }

func NewMailbox(opts Options) *Mailbox {
	return &Mailbox{
		mirror:  opts.Mirror,
		metrics: opts.Metrics,
		log:     logging.OrNop(opts.Logger).Named("slides"),
	}
}

// Post hands cmd to every waiting listener and empties the listener set.
// With no listener waiting, cmd becomes the pending command, replacing any
// earlier one.
func (m *Mailbox) Post(ctx context.Context, cmd string) {
	m.mu.Lock()
	delivered := len(m.listeners)
	if delivered == 0 {
		if m.hasPending {
			m.log.Debug("pending slide command overwritten", zap.String("tag", Tag(m.pending)))
		}
		m.pending, m.hasPending = cmd, true
	} else {
		for _, l := range m.listeners {
			l.c <- cmd
		}
		m.listeners = nil
		m.pending, m.hasPending = "", false
	}
	m.metrics.Listeners(len(m.listeners))
	m.mu.Unlock()

	delivery := "live"
	if delivered == 0 {
		delivery = "pending"
	}
	m.metrics.SlidePosted(Tag(cmd), delivery)
	m.log.Debug("slide command posted", zap.String("tag", Tag(cmd)), zap.Int("listeners", delivered))

	if m.mirror != nil {
		if err := m.mirror.Mirror(context.WithoutCancel(ctx), cmd); err != nil {
			m.log.Warn("slide command mirror failed", zap.Error(err))
		}
	}
}

// Register adds a listener. If a command is pending, the listener is
// answered at once, the slot is emptied, and the listener is not added to
// the waiting set.
func (m *Mailbox) Register() *Listener {
	l := &Listener{c: make(chan string, 1)}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasPending {
		l.c <- m.pending
		m.pending, m.hasPending = "", false
		return l
	}
	m.listeners = append(m.listeners, l)
	m.metrics.Listeners(len(m.listeners))
	return l
}

// Cancel removes l from the waiting set. It reports false when l was
// already answered, in which case its command is waiting on l.C().
func (m *Mailbox) Cancel(l *Listener) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.listeners {
		if w == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			m.metrics.Listeners(len(m.listeners))
			return true
		}
	}
	return false
}

// Wait registers a listener and blocks until it is answered or ctx ends.
func (m *Mailbox) Wait(ctx context.Context) (string, error) {
	l := m.Register()
	select {
	case cmd := <-l.c:
		return cmd, nil
	case <-ctx.Done():
		if !m.Cancel(l) {
			return <-l.c, nil
		}
		return "", ctx.Err()
	}
}

// Pending returns the parked command, if any.
func (m *Mailbox) Pending() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.hasPending
}

// Waiting reports how many listeners are registered.
func (m *Mailbox) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
