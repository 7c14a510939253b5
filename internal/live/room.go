package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is one participant's outbound event queue. Deliver must not block:
// it returns false when the queue is full, which the registry treats as a
// slow consumer and disconnects. Close tears the connection down.
type Sink interface {
	Deliver(ev Event) bool
	Close(reason string)
}

// counters accumulate per-session stats reported in the end-of-session summary.
type counters struct {
	Messages    int
	Reactions   int
	Violations  int
	PeakViewers int
}

// room is the per-session shared state: participant set, chat ring,
// moderation counters, reaction windows. All mutation is serialized by mu,
// one lock per session so rooms never contend with each other.
type room struct {
	mu sync.Mutex

	session      Session
	participants map[uuid.UUID]*Participant
	sinks        map[uuid.UUID]Sink

	chat      *messageRing
	nextMsgID int64

	moderation *moderationState
	pending    map[string]*pendingMessage
	reactions  *reactionLimiter

	stats      counters
	emptySince time.Time // when the participant set last became empty while live
	endedAt    time.Time // when the session entered a terminal status
}

func newRoom(session Session, cfg Config) *room {
	return &room{
		session:      session,
		participants: make(map[uuid.UUID]*Participant),
		sinks:        make(map[uuid.UUID]Sink),
		chat:         newMessageRing(cfg.HistorySize),
		moderation:   newModerationState(session.ID, DefaultPolicy(cfg.ViolationThreshold)),
		pending:      make(map[string]*pendingMessage),
		reactions:    newReactionLimiter(cfg.ReactionsPerSecond, time.Second),
		emptySince:   time.Now(),
	}
}

// hostLocked returns the active host participant, if any.
func (r *room) hostLocked() *Participant {
	for _, p := range r.participants {
		if p.Role == RoleHost {
			return p
		}
	}
	return nil
}

// viewerCountLocked counts viewer-role participants. The host is excluded.
func (r *room) viewerCountLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.Role == RoleViewer {
			n++
		}
	}
	return n
}

// broadcastLocked fans an event out to every sink except `except`. It returns
// the user ids whose queues overflowed; the caller must evict them after
// releasing the lock so a slow consumer never stalls the room.
func (r *room) broadcastLocked(ev Event, except uuid.UUID) []uuid.UUID {
	var dropped []uuid.UUID
	for userID, sink := range r.sinks {
		if userID == except {
			continue
		}
		if !sink.Deliver(ev) {
			dropped = append(dropped, userID)
		}
	}
	return dropped
}

// deliverLocked sends an event to one participant. Returns false when the
// participant is absent or its queue overflowed.
func (r *room) deliverLocked(userID uuid.UUID, ev Event) (ok, present bool) {
	sink, exists := r.sinks[userID]
	if !exists {
		return false, false
	}
	return sink.Deliver(ev), true
}

// snapshotLocked copies the session and participant set.
func (r *room) snapshotLocked() Snapshot {
	parts := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		parts = append(parts, *p)
	}
	return Snapshot{
		Session:      r.session,
		Participants: parts,
		ViewerCount:  r.viewerCountLocked(),
	}
}

// noteOccupancyLocked updates the empty-since marker and peak viewers after a
// membership change.
func (r *room) noteOccupancyLocked() {
	if len(r.participants) == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = time.Now()
		}
	} else {
		r.emptySince = time.Time{}
	}
	if vc := r.viewerCountLocked(); vc > r.stats.PeakViewers {
		r.stats.PeakViewers = vc
	}
}
