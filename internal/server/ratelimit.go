package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AcceptLimiter throttles connection attempts per source IP. Entries idle for
// cleanupAfter are dropped by a background sweep.
type AcceptLimiter struct {
	mu      sync.Mutex
	entries map[string]*acceptEntry
}

type acceptEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	acceptPerSecond = 2
	acceptBurst     = 5
	cleanupAfter    = 5 * time.Minute
)

// NewAcceptLimiter returns a limiter with the sweep running.
func NewAcceptLimiter() *AcceptLimiter {
	al := &AcceptLimiter{entries: make(map[string]*acceptEntry)}
	go al.sweep()
	return al
}

// Allow reports whether a connection attempt from ip may proceed.
func (al *AcceptLimiter) Allow(ip string) bool {
	al.mu.Lock()
	defer al.mu.Unlock()
	e, ok := al.entries[ip]
	if !ok {
		e = &acceptEntry{limiter: rate.NewLimiter(acceptPerSecond, acceptBurst)}
		al.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.limiter.Allow()
}

func (al *AcceptLimiter) sweep() {
	for range time.Tick(cleanupAfter) {
		cutoff := time.Now().Add(-cleanupAfter)
		al.mu.Lock()
		for ip, e := range al.entries {
			if e.lastSeen.Before(cutoff) {
				delete(al.entries, ip)
			}
		}
		al.mu.Unlock()
	}
}

// chatLimiter throttles chat lines per player. Single-threaded with the game
// loop, so no lock.
type chatLimiter struct {
	limiters map[uint64]*rate.Limiter
}

const (
	chatPerSecond = 1
	chatBurst     = 3
)

func newChatLimiter() *chatLimiter {
	return &chatLimiter{limiters: make(map[uint64]*rate.Limiter)}
}

// Allow reports whether the session may send another chat line.
func (cl *chatLimiter) Allow(sessionID uint64) bool {
	l, ok := cl.limiters[sessionID]
	if !ok {
		l = rate.NewLimiter(chatPerSecond, chatBurst)
		cl.limiters[sessionID] = l
	}
	return l.Allow()
}

// Forget drops a session's limiter on disconnect.
func (cl *chatLimiter) Forget(sessionID uint64) {
	delete(cl.limiters, sessionID)
}

// voteStartLimiter throttles vote starts per source IP.
type voteStartLimiter struct {
	limiters map[string]*rate.Limiter
}

func newVoteStartLimiter() *voteStartLimiter {
	return &voteStartLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow reports whether ip may start another vote. One vote per 30 seconds
// with a burst of one.
func (vl *voteStartLimiter) Allow(ip string) bool {
	l, ok := vl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rate.Every(30*time.Second), 1)
		vl.limiters[ip] = l
	}
	return l.Allow()
}
