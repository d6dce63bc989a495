// Package guard provides the dedupe and throttle checks on the inbound
// message path: at-most-once processing per message id within a TTL window,
// and a minimum inter-reply spacing per identity to damp reply loops.
package guard

import (
	"sync"
	"time"
)

const (
	// DefaultDedupeTTL bounds how long a seen message id blocks reprocessing.
	DefaultDedupeTTL = 5 * time.Minute
	// DefaultReplyGap is the minimum spacing between replies to one identity.
	DefaultReplyGap = 1200 * time.Millisecond
)

// Guard holds the ephemeral dedupe and throttle state. Both maps are
// process-lifetime only; a restart forgets everything by design.
type Guard struct {
	mu        sync.Mutex
	seen      map[string]time.Time // dedupe key -> expiry
	lastReply map[string]time.Time // jid -> last reply time
	inFlight  map[string]struct{}  // jid -> reply currently being produced

	dedupeTTL time.Duration
	replyGap  time.Duration
	now       func() time.Time
}

// New constructs a Guard. Zero durations select the defaults.
func New(dedupeTTL, replyGap time.Duration) *Guard {
	if dedupeTTL <= 0 {
		dedupeTTL = DefaultDedupeTTL
	}
	if replyGap <= 0 {
		replyGap = DefaultReplyGap
	}
	return &Guard{
		seen:      map[string]time.Time{},
		lastReply: map[string]time.Time{},
		inFlight:  map[string]struct{}{},
		dedupeTTL: dedupeTTL,
		replyGap:  replyGap,
		now:       time.Now,
	}
}

// MarkSeen records (jid, messageID) and reports whether the message should be
// processed: false when the key is already present and unexpired. Expired
// entries are swept opportunistically on each call; there is no background
// timer, so memory stays bounded to recently seen traffic.
func (g *Guard) MarkSeen(jid, messageID string) bool {
	key := jid + "|" + messageID

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.seen {
		if !exp.After(now) {
			delete(g.seen, k)
		}
	}

	if exp, ok := g.seen[key]; ok && exp.After(now) {
		return false
	}
	g.seen[key] = now.Add(g.dedupeTTL)
	return true
}

// BeginReply reserves the right to produce a reply to jid. It returns false
// (suppress, not an error) when a reply is already being produced for jid or
// the minimum gap since the last produced reply has not elapsed. A successful
// reservation must be released with FinishReply.
func (g *Guard) BeginReply(jid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[jid]; busy {
		return false
	}
	if last, ok := g.lastReply[jid]; ok && g.now().Sub(last) < g.replyGap {
		return false
	}
	g.inFlight[jid] = struct{}{}
	return true
}

// FinishReply releases the reservation. The last-reply timestamp is recorded
// only when a reply was actually produced, so suppressed or failed attempts
// never extend the throttle window.
func (g *Guard) FinishReply(jid string, produced bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, jid)
	if produced {
		g.lastReply[jid] = g.now()
	}
}
