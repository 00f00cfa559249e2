package session

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedCallers bounds the guess table; past it the table starts over.
const maxTrackedCallers = 4096

// guessLimiter spends one token per wrong passphrase, per caller.
type guessLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	callers map[string]*rate.Limiter
}

func newGuessLimiter(limit rate.Limit, burst int) *guessLimiter {
	if limit <= 0 || burst <= 0 {
		return nil
	}
	return &guessLimiter{limit: limit, burst: burst, callers: make(map[string]*rate.Limiter)}
}

// wrongGuess records a failed attempt and reports whether caller is still
// within its budget. A nil limiter never throttles.
func (g *guessLimiter) wrongGuess(caller string) bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.callers[caller]
	if !ok {
		if len(g.callers) >= maxTrackedCallers {
			g.callers = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(g.limit, g.burst)
		g.callers[caller] = l
	}
	return l.Allow()
}
