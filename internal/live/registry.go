// Package live is the live-session coordination core: session lifecycle,
// presence, chat fan-out, moderation, reactions and peer signaling for one
// ephemeral broadcast session with a single host and many viewers.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the core's tunables. Zero values are replaced with defaults.
type Config struct {
	HistorySize        int
	MaxMessageLen      int
	SendBuffer         int
	SweepInterval      time.Duration
	EndedRetention     time.Duration
	EmptyLiveGrace     time.Duration
	ReactionsPerSecond int
	ViolationThreshold int
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.MaxMessageLen <= 0 {
		c.MaxMessageLen = 1000
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.EndedRetention <= 0 {
		c.EndedRetention = 5 * time.Minute
	}
	if c.EmptyLiveGrace <= 0 {
		c.EmptyLiveGrace = 2 * time.Minute
	}
	if c.ReactionsPerSecond <= 0 {
		c.ReactionsPerSecond = 5
	}
	if c.ViolationThreshold <= 0 {
		c.ViolationThreshold = 3
	}
	return c
}

// Store loads scheduled session metadata and persists status transitions.
// Scheduling itself happens outside this service.
type Store interface {
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error) // nil, nil when unknown
	SaveStatus(ctx context.Context, s Session) error
}

// Bridge fans events out across horizontally scaled instances.
type Bridge interface {
	Publish(sessionID uuid.UUID, ev Event) error
	Subscribe(sessionID uuid.UUID, deliver func(ev Event)) (cancel func(), err error)
}

// Sequencer allocates session-scoped chat message ids from shared storage.
// Required whenever a Bridge is in play: two instances drawing from per-room
// counters would hand out colliding ids.
type Sequencer interface {
	NextMessageID(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

// Summary is the end-of-session stats handed to Hooks.OnSessionEnded.
type Summary struct {
	SessionID   uuid.UUID `json:"session_id"`
	HostID      uuid.UUID `json:"host_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	PeakViewers int       `json:"peak_viewers"`
	Messages    int       `json:"messages"`
	Reactions   int       `json:"reactions"`
	Violations  int       `json:"violations"`
}

// Hooks are side-effect callbacks invoked after the triggering mutation
// completes, outside any room lock.
type Hooks struct {
	OnJoin         func(sessionID, userID uuid.UUID, role Role)
	OnLeave        func(sessionID, userID uuid.UUID, joinedAt time.Time)
	OnSessionEnded func(sum Summary)
}

// Registry is the authoritative in-memory record of live sessions and their
// participants. One lock per session room; the registry lock only guards the
// room map itself.
type Registry struct {
	cfg     Config
	store   Store
	bridge  Bridge
	seq     Sequencer
	checker Checker
	hooks   Hooks
	logger  *zap.Logger

	mu    sync.RWMutex
	rooms map[uuid.UUID]*room
	subs  map[uuid.UUID]func()
}

// NewRegistry creates a session registry. store, bridge and checker may be nil
// (in-memory only, single instance, no automated content check).
func NewRegistry(cfg Config, store Store, bridge Bridge, checker Checker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:     cfg.withDefaults(),
		store:   store,
		bridge:  bridge,
		checker: checker,
		logger:  logger,
		rooms:   make(map[uuid.UUID]*room),
		subs:    make(map[uuid.UUID]func()),
	}
}

// SetHooks installs side-effect callbacks. Call before serving traffic.
func (r *Registry) SetHooks(h Hooks) { r.hooks = h }

// SetSequencer installs the shared message-id allocator. Call before serving
// traffic; must be set whenever a bridge is.
func (r *Registry) SetSequencer(seq Sequencer) { r.seq = seq }

// Config returns the effective core configuration.
func (r *Registry) Config() Config { return r.cfg }

// CreateOrGetSession materializes the in-memory room for a session id,
// hydrating from the store when a scheduled row exists, and returns a snapshot.
func (r *Registry) CreateOrGetSession(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	rm, err := r.getOrCreate(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotLocked(), nil
}

// GetSnapshot returns the current state of a known session.
func (r *Registry) GetSnapshot(id uuid.UUID) (Snapshot, error) {
	rm := r.lookup(id)
	if rm == nil {
		return Snapshot{}, ErrSessionNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotLocked(), nil
}

// Join adds a participant and its sink to a session. A repeated join by the
// same user supersedes the previous connection. On success the sink receives
// session_joined (with the replay window) before the room-wide
// viewer_count_updated broadcast.
func (r *Registry) Join(ctx context.Context, sessionID, userID uuid.UUID, displayName string, role Role, sink Sink) error {
	rm, err := r.getOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	if rm.session.Status.Terminal() {
		rm.mu.Unlock()
		return ErrSessionNotJoinable
	}
	if role == RoleHost {
		if h := rm.hostLocked(); h != nil && h.UserID != userID {
			rm.mu.Unlock()
			return ErrHostConflict
		}
		if rm.session.HostID != uuid.Nil && rm.session.HostID != userID {
			rm.mu.Unlock()
			return ErrHostConflict
		}
		if rm.session.HostID == uuid.Nil {
			rm.session.HostID = userID
		}
	}

	var superseded Sink
	if _, rejoin := rm.participants[userID]; rejoin {
		superseded = rm.sinks[userID]
	}
	rm.participants[userID] = &Participant{
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: displayName,
		Role:        role,
		JoinedAt:    time.Now(),
	}
	rm.sinks[userID] = sink
	rm.noteOccupancyLocked()

	joined := SessionJoined{
		Session:        rm.session,
		Role:           role,
		ViewerCount:    rm.viewerCountLocked(),
		RecentMessages: rm.chat.snapshot(),
	}
	sink.Deliver(joined)
	count := ViewerCountUpdated{SessionID: sessionID, Count: joined.ViewerCount}
	dropped := rm.broadcastLocked(count, uuid.Nil)
	rm.mu.Unlock()

	if superseded != nil {
		superseded.Close("superseded by new connection")
	}
	r.evict(sessionID, dropped, "send queue overflow")
	if r.hooks.OnJoin != nil {
		r.hooks.OnJoin(sessionID, userID, role)
	}
	r.logger.Debug("participant joined",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", string(role)))
	return nil
}

// Leave removes a participant. sink identifies the connection leaving: a
// connection that was already superseded by a rejoin gets ErrNotParticipant
// instead of unregistering its successor. A nil sink removes unconditionally.
// Remaining peers receive peer_left (to abort any signaling negotiation with
// it) and the updated viewer count.
func (r *Registry) Leave(sessionID, userID uuid.UUID, sink Sink) error {
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}

	rm.mu.Lock()
	p, ok := rm.participants[userID]
	if !ok {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	if sink != nil && rm.sinks[userID] != sink {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	joinedAt := p.JoinedAt
	delete(rm.participants, userID)
	delete(rm.sinks, userID)
	rm.reactions.forget(userID)
	rm.noteOccupancyLocked()

	dropped := rm.broadcastLocked(PeerLeft{UserID: userID}, uuid.Nil)
	count := ViewerCountUpdated{SessionID: sessionID, Count: rm.viewerCountLocked()}
	dropped = append(dropped, rm.broadcastLocked(count, uuid.Nil)...)
	rm.mu.Unlock()

	r.evict(sessionID, dropped, "send queue overflow")
	if r.hooks.OnLeave != nil {
		r.hooks.OnLeave(sessionID, userID, joinedAt)
	}
	r.logger.Debug("participant left",
		zap.String("session_id", sessionID.String()),
		zap.String("user_id", userID.String()))
	return nil
}

// Transition moves a session to a new status. Repeating the current status is
// a no-op; unreachable targets fail with ErrInvalidTransition. actorID must be
// the host; uuid.Nil marks an internal actor (idle sweep).
func (r *Registry) Transition(ctx context.Context, sessionID uuid.UUID, to Status, actorID uuid.UUID) error {
	rm, err := r.getOrCreate(ctx, sessionID)
	if err != nil {
		return err
	}

	rm.mu.Lock()
	if actorID != uuid.Nil && rm.session.HostID != actorID {
		rm.mu.Unlock()
		return ErrNotHost
	}
	cur := rm.session.Status
	if cur == to {
		rm.mu.Unlock()
		return nil
	}
	if !cur.CanTransition(to) {
		rm.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
	}

	now := time.Now()
	rm.session.Status = to
	var lifecycle Event
	switch to {
	case StatusLive:
		rm.session.ActualStart = &now
		lifecycle = SessionStarted{SessionID: sessionID}
	case StatusEnded, StatusCancelled:
		rm.session.ActualEnd = &now
		rm.endedAt = now
		lifecycle = SessionEnded{SessionID: sessionID}
	}
	dropped := rm.broadcastLocked(lifecycle, uuid.Nil)
	session := rm.session
	var sum *Summary
	if to == StatusEnded || to == StatusCancelled {
		s := r.summaryLocked(rm, now)
		sum = &s
	}
	rm.mu.Unlock()

	r.evict(sessionID, dropped, "send queue overflow")
	r.publish(sessionID, lifecycle)
	if r.store != nil {
		if err := r.store.SaveStatus(ctx, session); err != nil {
			r.logger.Error("persist session status", zap.Error(err), zap.String("session_id", sessionID.String()))
		}
	}
	if sum != nil && r.hooks.OnSessionEnded != nil {
		r.hooks.OnSessionEnded(*sum)
	}
	r.logger.Info("session transitioned",
		zap.String("session_id", sessionID.String()),
		zap.String("from", string(cur)),
		zap.String("to", string(to)))
	return nil
}

// DeliverRemote fans an event from another instance out to local sinks.
// Remote chat messages also land in the local replay ring, so a late joiner
// here replays messages sent through any instance, and the room's counter is
// advanced past each observed id.
func (r *Registry) DeliverRemote(sessionID uuid.UUID, ev Event) {
	rm := r.lookup(sessionID)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	if nm, ok := ev.(NewMessage); ok {
		rm.chat.push(nm.Message)
		if nm.Message.ID > rm.nextMsgID {
			rm.nextMsgID = nm.Message.ID
		}
	}
	dropped := rm.broadcastLocked(ev, uuid.Nil)
	rm.mu.Unlock()
	r.evict(sessionID, dropped, "send queue overflow")
}

// Run drives the idle sweep until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("registry sweep stopping")
			return
		case <-ticker.C:
			r.Sweep(ctx, time.Now())
		}
	}
}

// Sweep evicts sessions past the ended-retention window and force-ends live
// sessions that have sat empty longer than the grace period.
func (r *Registry) Sweep(ctx context.Context, now time.Time) {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		rm := r.lookup(id)
		if rm == nil {
			continue
		}
		rm.mu.Lock()
		expire := rm.session.Status.Terminal() && !rm.endedAt.IsZero() && now.Sub(rm.endedAt) > r.cfg.EndedRetention
		forceEnd := rm.session.Status == StatusLive && !rm.emptySince.IsZero() && now.Sub(rm.emptySince) > r.cfg.EmptyLiveGrace
		rm.mu.Unlock()

		if forceEnd {
			if err := r.Transition(ctx, id, StatusEnded, uuid.Nil); err != nil {
				r.logger.Warn("force-end empty session", zap.Error(err), zap.String("session_id", id.String()))
			}
		}
		if expire {
			r.dropRoom(id)
		}
	}
}

// --- internals ---

func (r *Registry) lookup(id uuid.UUID) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

func (r *Registry) getOrCreate(ctx context.Context, id uuid.UUID) (*room, error) {
	if rm := r.lookup(id); rm != nil {
		return rm, nil
	}

	// Store lookup happens before taking the registry lock; losing the race
	// below just discards the extra read.
	session := Session{ID: id, Status: StatusScheduled, ScheduledAt: time.Now()}
	if r.store != nil {
		stored, err := r.store.GetSession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if stored != nil {
			session = *stored
		}
	}

	r.mu.Lock()
	if rm, ok := r.rooms[id]; ok {
		r.mu.Unlock()
		return rm, nil
	}
	rm := newRoom(session, r.cfg)
	r.rooms[id] = rm
	r.mu.Unlock()

	if r.bridge != nil {
		cancel, err := r.bridge.Subscribe(id, func(ev Event) { r.DeliverRemote(id, ev) })
		if err != nil {
			r.logger.Warn("bridge subscribe", zap.Error(err), zap.String("session_id", id.String()))
		} else {
			r.mu.Lock()
			r.subs[id] = cancel
			r.mu.Unlock()
		}
	}
	return rm, nil
}

// dropRoom evicts a session from memory, closing any remaining sinks.
func (r *Registry) dropRoom(id uuid.UUID) {
	r.mu.Lock()
	rm, ok := r.rooms[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.rooms, id)
	cancel := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	rm.mu.Lock()
	sinks := make([]Sink, 0, len(rm.sinks))
	for _, s := range rm.sinks {
		sinks = append(sinks, s)
	}
	rm.participants = make(map[uuid.UUID]*Participant)
	rm.sinks = make(map[uuid.UUID]Sink)
	rm.mu.Unlock()
	for _, s := range sinks {
		s.Close("session evicted")
	}
	r.logger.Info("session evicted", zap.String("session_id", id.String()))
}

// evict disconnects participants whose outbound queues overflowed, treating
// each as a leave so a slow consumer never stalls the room.
func (r *Registry) evict(sessionID uuid.UUID, userIDs []uuid.UUID, reason string) {
	for _, userID := range userIDs {
		rm := r.lookup(sessionID)
		if rm == nil {
			return
		}
		rm.mu.Lock()
		sink, ok := rm.sinks[userID]
		rm.mu.Unlock()
		if !ok {
			continue
		}
		sink.Close(reason)
		if err := r.Leave(sessionID, userID, sink); err != nil && err != ErrNotParticipant {
			r.logger.Warn("evict leave", zap.Error(err), zap.String("user_id", userID.String()))
		}
		r.logger.Warn("participant evicted",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", userID.String()),
			zap.String("reason", reason))
	}
}

func (r *Registry) summaryLocked(rm *room, endedAt time.Time) Summary {
	started := endedAt
	if rm.session.ActualStart != nil {
		started = *rm.session.ActualStart
	}
	return Summary{
		SessionID:   rm.session.ID,
		HostID:      rm.session.HostID,
		StartedAt:   started,
		EndedAt:     endedAt,
		PeakViewers: rm.stats.PeakViewers,
		Messages:    rm.stats.Messages,
		Reactions:   rm.stats.Reactions,
		Violations:  rm.stats.Violations,
	}
}

func (r *Registry) publish(sessionID uuid.UUID, ev Event) {
	if r.bridge == nil || ev == nil {
		return
	}
	if err := r.bridge.Publish(sessionID, ev); err != nil {
		r.logger.Warn("bridge publish", zap.Error(err), zap.String("event", ev.EventName()))
	}
}
