package live

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitMessage runs one chat submission through validation, moderation and
// fan-out. Accepted messages are broadcast to the whole room; the sender's
// copy echoes its client_ref so an optimistic local entry can be promoted.
// Rejections are returned to the caller and reported to the sender only.
func (r *Registry) SubmitMessage(ctx context.Context, sessionID, senderID uuid.UUID, req SubmitRequest) error {
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}
	if err := req.Validate(r.cfg.MaxMessageLen); err != nil {
		return err
	}

	rm.mu.Lock()
	sender, ok := rm.participants[senderID]
	if !ok {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	if rm.moderation.blocked(senderID) {
		rm.mu.Unlock()
		return ErrUserBlocked
	}
	policy := rm.moderation.policy
	senderName := sender.DisplayName
	rm.mu.Unlock()

	// Moderation may call an external classifier; never hold the room lock
	// across it. Membership and blocked state are re-checked afterwards.
	verdict, reason := VerdictApprove, ""
	if policy.AutoCheck && r.checker != nil {
		var err error
		verdict, reason, err = r.checker.Check(ctx, req.Body)
		if err != nil {
			r.logger.Error("moderation check", zap.Error(err), zap.String("session_id", sessionID.String()))
			verdict, reason = VerdictApprove, ""
		}
	}
	if verdict == VerdictFlag && !policy.ManualReview {
		verdict = VerdictApprove
	}

	var msgID int64
	if verdict == VerdictApprove {
		var err error
		if msgID, err = r.allocateMessageID(ctx, sessionID); err != nil {
			return err
		}
	}

	rm.mu.Lock()
	if _, still := rm.participants[senderID]; !still {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	if rm.moderation.blocked(senderID) {
		rm.mu.Unlock()
		return ErrUserBlocked
	}

	switch verdict {
	case VerdictApprove:
		msg, dropped := rm.acceptLocked(msgID, senderID, senderName, req)
		rm.mu.Unlock()
		r.evict(sessionID, dropped, "send queue overflow")
		r.publish(sessionID, NewMessage{Message: msg})
		return nil

	case VerdictFlag:
		ref := uuid.New().String()
		rm.pending[ref] = &pendingMessage{
			ref: ref,
			msg: ChatMessage{
				SessionID:  sessionID,
				SenderID:   senderID,
				SenderName: senderName,
				Body:       req.Body,
				Kind:       req.Kind,
				ReplyTo:    req.ReplyTo,
				CreatedAt:  time.Now(),
			},
			clientRef: req.ClientRef,
			heldAt:    time.Now(),
		}
		review := MessageReview{Ref: ref, SenderID: senderID, SenderName: senderName, Body: req.Body}
		var dropped []uuid.UUID
		if h := rm.hostLocked(); h != nil {
			if ok, _ := rm.deliverLocked(h.UserID, review); !ok {
				dropped = append(dropped, h.UserID)
			}
		}
		rm.deliverLocked(senderID, MessagePending{Ref: ref, ClientRef: req.ClientRef})
		rm.mu.Unlock()
		r.evict(sessionID, dropped, "send queue overflow")
		return nil

	case VerdictReject, VerdictBlock:
		rm.stats.Violations++
		crossed := rm.moderation.violation(senderID)
		if verdict == VerdictBlock {
			rm.moderation.record(senderID).Blocked = true
		}
		rm.mu.Unlock()
		if reason == "" {
			reason = "message rejected"
		}
		if verdict == VerdictBlock || crossed {
			return fmt.Errorf("%w: %s", ErrUserBlocked, reason)
		}
		return fmt.Errorf("%w: %s", ErrRejected, reason)
	}
	rm.mu.Unlock()
	return nil
}

// acceptLocked records an accepted message in the replay ring and fans it
// out. An id of zero means no shared sequencer is wired and the room's own
// counter assigns one; a non-zero id was pre-allocated and the counter is
// advanced past it so the two can never collide. Returns the accepted message
// and overflowed user ids.
func (rm *room) acceptLocked(id int64, senderID uuid.UUID, senderName string, req SubmitRequest) (ChatMessage, []uuid.UUID) {
	if id == 0 {
		rm.nextMsgID++
		id = rm.nextMsgID
	} else if id > rm.nextMsgID {
		rm.nextMsgID = id
	}
	msg := ChatMessage{
		ID:         id,
		SessionID:  rm.session.ID,
		SenderID:   senderID,
		SenderName: senderName,
		Body:       req.Body,
		Kind:       req.Kind,
		ReplyTo:    req.ReplyTo,
		CreatedAt:  time.Now(),
	}
	rm.chat.push(msg)
	rm.stats.Messages++

	dropped := rm.broadcastLocked(NewMessage{Message: msg}, senderID)
	if ok, present := rm.deliverLocked(senderID, NewMessage{Message: msg, ClientRef: req.ClientRef}); present && !ok {
		dropped = append(dropped, senderID)
	}
	return msg, dropped
}

// allocateMessageID draws the next chat message id from the shared sequencer
// when one is wired, so horizontally scaled instances never hand out the same
// id. Without a sequencer it returns zero and acceptLocked assigns locally.
func (r *Registry) allocateMessageID(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	if r.seq == nil {
		return 0, nil
	}
	id, err := r.seq.NextMessageID(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("allocate message id: %w", err)
	}
	return id, nil
}

// Replay returns the session's buffered messages, oldest first.
func (r *Registry) Replay(sessionID uuid.UUID) ([]ChatMessage, error) {
	rm := r.lookup(sessionID)
	if rm == nil {
		return nil, ErrSessionNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.chat.snapshot(), nil
}

// Typing relays a typing indicator to everyone but the typist.
func (r *Registry) Typing(sessionID, userID uuid.UUID, isTyping bool) error {
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}
	rm.mu.Lock()
	if _, ok := rm.participants[userID]; !ok {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	ev := UserTyping{UserID: userID, IsTyping: isTyping}
	dropped := rm.broadcastLocked(ev, userID)
	rm.mu.Unlock()
	r.evict(sessionID, dropped, "send queue overflow")
	r.publish(sessionID, ev)
	return nil
}

// React emits a fire-and-forget reaction to all current participants.
// Emissions beyond the per-user rate limit are silently dropped.
func (r *Registry) React(sessionID, userID uuid.UUID, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return fmt.Errorf("%w: empty emoji", ErrInvalidMessage)
	}
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}
	rm.mu.Lock()
	if _, ok := rm.participants[userID]; !ok {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	if !rm.reactions.allow(userID, time.Now()) {
		rm.mu.Unlock()
		return nil
	}
	rm.stats.Reactions++
	ev := ReactionReceived{UserID: userID, Emoji: emoji}
	dropped := rm.broadcastLocked(ev, uuid.Nil)
	rm.mu.Unlock()
	r.evict(sessionID, dropped, "send queue overflow")
	r.publish(sessionID, ev)
	return nil
}

// Relay delivers a signaling envelope to one participant. Only host<->viewer
// pairs may signal; a departed target fails with ErrStaleTarget so the sender
// can tear down the negotiation instead of waiting. Renegotiation offers go
// through the same path as initial ones.
func (r *Registry) Relay(sessionID, fromID uuid.UUID, req SignalRequest) error {
	if err := ValidateSignalPayload(req.Kind, req.Payload); err != nil {
		return err
	}
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}

	rm.mu.Lock()
	from, ok := rm.participants[fromID]
	if !ok {
		rm.mu.Unlock()
		return ErrNotParticipant
	}
	to, ok := rm.participants[req.ToID]
	if !ok {
		rm.mu.Unlock()
		return ErrStaleTarget
	}
	if from.Role != RoleHost && to.Role != RoleHost {
		rm.mu.Unlock()
		return fmt.Errorf("%w: signaling is between host and viewer only", ErrInvalidSignal)
	}
	delivered, _ := rm.deliverLocked(req.ToID, Signal{FromID: fromID, Kind: req.Kind, Payload: req.Payload})
	rm.mu.Unlock()

	if !delivered {
		r.evict(sessionID, []uuid.UUID{req.ToID}, "send queue overflow")
		return ErrStaleTarget
	}
	return nil
}

// Moderate applies a host decision to a held message, feeding the same
// violation-counting rule as automated evaluation.
func (r *Registry) Moderate(ctx context.Context, sessionID, actorID uuid.UUID, req ModerateRequest) error {
	switch req.Decision {
	case DecisionApprove, DecisionReject, DecisionBlock:
	default:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidMessage, req.Decision)
	}
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}

	// Pre-allocate before the lock; an id wasted on a failed decision just
	// leaves a gap in the sequence.
	var msgID int64
	if req.Decision == DecisionApprove {
		var err error
		if msgID, err = r.allocateMessageID(ctx, sessionID); err != nil {
			return err
		}
	}

	rm.mu.Lock()
	if rm.session.HostID != actorID {
		rm.mu.Unlock()
		return ErrNotHost
	}
	held, ok := rm.pending[req.Ref]
	if !ok {
		rm.mu.Unlock()
		return ErrUnknownReview
	}
	delete(rm.pending, req.Ref)

	switch req.Decision {
	case DecisionApprove:
		msg, dropped := rm.acceptLocked(msgID, held.msg.SenderID, held.msg.SenderName, SubmitRequest{
			Body:      held.msg.Body,
			Kind:      held.msg.Kind,
			ReplyTo:   held.msg.ReplyTo,
			ClientRef: held.clientRef,
		})
		rm.mu.Unlock()
		r.evict(sessionID, dropped, "send queue overflow")
		r.publish(sessionID, NewMessage{Message: msg})
		return nil

	case DecisionReject, DecisionBlock:
		rm.stats.Violations++
		crossed := rm.moderation.violation(held.msg.SenderID)
		if req.Decision == DecisionBlock {
			rm.moderation.record(held.msg.SenderID).Blocked = true
		}
		code := ErrRejected
		if req.Decision == DecisionBlock || crossed {
			code = ErrUserBlocked
		}
		rm.deliverLocked(held.msg.SenderID, Errorf(fmt.Errorf("%w: message removed by host", code)))
		rm.mu.Unlock()
		return nil
	}
	rm.mu.Unlock()
	return nil
}

// PendingReviews lists the messages awaiting a host decision. Host only.
func (r *Registry) PendingReviews(sessionID, actorID uuid.UUID) ([]MessageReview, error) {
	rm := r.lookup(sessionID)
	if rm == nil {
		return nil, ErrSessionNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.session.HostID != actorID {
		return nil, ErrNotHost
	}
	out := make([]MessageReview, 0, len(rm.pending))
	for _, p := range rm.pending {
		out = append(out, MessageReview{Ref: p.ref, SenderID: p.msg.SenderID, SenderName: p.msg.SenderName, Body: p.msg.Body})
	}
	return out, nil
}

// Unban resets a user's violation state. Idempotent: unbanning an
// already-clean user is a no-op. Host only.
func (r *Registry) Unban(sessionID, actorID, userID uuid.UUID) error {
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.session.HostID != actorID {
		return ErrNotHost
	}
	rm.moderation.unban(userID)
	return nil
}

// ModerationRecordOf returns the violation state for a user, or a clean
// record when none exists. Host only.
func (r *Registry) ModerationRecordOf(sessionID, actorID, userID uuid.UUID) (ModerationRecord, error) {
	rm := r.lookup(sessionID)
	if rm == nil {
		return ModerationRecord{}, ErrSessionNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.session.HostID != actorID {
		return ModerationRecord{}, ErrNotHost
	}
	if rec, ok := rm.moderation.users[userID]; ok {
		return *rec, nil
	}
	return ModerationRecord{SessionID: sessionID, UserID: userID}, nil
}

// SetPolicy replaces a session's moderation policy. Host only.
func (r *Registry) SetPolicy(sessionID, actorID uuid.UUID, p Policy) error {
	rm := r.lookup(sessionID)
	if rm == nil {
		return ErrSessionNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.session.HostID != actorID {
		return ErrNotHost
	}
	if p.ViolationThreshold < 1 {
		p.ViolationThreshold = r.cfg.ViolationThreshold
	}
	rm.moderation.policy = p
	return nil
}
