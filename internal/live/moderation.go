package live

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Verdict is the outcome of an automated content check.
type Verdict int

const (
	VerdictApprove Verdict = iota
	VerdictReject
	VerdictFlag // not auto-approved, not auto-rejected: goes to manual review when enabled
	VerdictBlock
)

// Decision is a host ruling on a held message.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionBlock   Decision = "block"
)

// Checker evaluates a message body. Implementations may call an external
// classifier; the registry never holds a room lock across a Check call.
type Checker interface {
	Check(ctx context.Context, body string) (Verdict, string, error)
}

// Policy declares which moderation checks a session runs.
type Policy struct {
	AutoCheck          bool `json:"auto_check"`
	ManualReview       bool `json:"manual_review"`
	ViolationThreshold int  `json:"violation_threshold"`
}

// DefaultPolicy returns the policy applied when a session declares none.
func DefaultPolicy(threshold int) Policy {
	if threshold < 1 {
		threshold = 3
	}
	return Policy{AutoCheck: true, ManualReview: false, ViolationThreshold: threshold}
}

// ModerationRecord is per (session, user) violation state.
type ModerationRecord struct {
	SessionID       uuid.UUID `json:"session_id"`
	UserID          uuid.UUID `json:"user_id"`
	ViolationCount  int       `json:"violation_count"`
	LastViolationAt time.Time `json:"last_violation_at"`
	Blocked         bool      `json:"blocked"`
}

// moderationState holds the clean -> warned -> blocked machine for one
// session. Callers hold the room lock.
type moderationState struct {
	sessionID uuid.UUID
	policy    Policy
	users     map[uuid.UUID]*ModerationRecord
}

func newModerationState(sessionID uuid.UUID, policy Policy) *moderationState {
	return &moderationState{
		sessionID: sessionID,
		policy:    policy,
		users:     make(map[uuid.UUID]*ModerationRecord),
	}
}

func (m *moderationState) record(userID uuid.UUID) *ModerationRecord {
	rec, ok := m.users[userID]
	if !ok {
		rec = &ModerationRecord{SessionID: m.sessionID, UserID: userID}
		m.users[userID] = rec
	}
	return rec
}

func (m *moderationState) blocked(userID uuid.UUID) bool {
	rec, ok := m.users[userID]
	return ok && rec.Blocked
}

// violation increments the counter and reports whether the user just crossed
// the threshold into blocked.
func (m *moderationState) violation(userID uuid.UUID) bool {
	rec := m.record(userID)
	rec.ViolationCount++
	rec.LastViolationAt = time.Now()
	if !rec.Blocked && rec.ViolationCount >= m.policy.ViolationThreshold {
		rec.Blocked = true
		return true
	}
	return false
}

// unban resets the user to clean. A no-op for already-clean users.
func (m *moderationState) unban(userID uuid.UUID) {
	rec, ok := m.users[userID]
	if !ok {
		return
	}
	rec.ViolationCount = 0
	rec.Blocked = false
}

// pendingMessage is a flagged submission held out of the ring until the host
// rules on it.
type pendingMessage struct {
	ref       string
	msg       ChatMessage
	clientRef string
	heldAt    time.Time
}

// WordlistChecker is the built-in content check: exact banned terms reject,
// watch terms flag for review. Matching is case-insensitive on whole bodies.
type WordlistChecker struct {
	banned  []string
	watched []string
}

// NewWordlistChecker builds a checker from banned and watch term lists.
func NewWordlistChecker(banned, watched []string) *WordlistChecker {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if t := strings.ToLower(strings.TrimSpace(s)); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return &WordlistChecker{banned: lower(banned), watched: lower(watched)}
}

// Check implements Checker.
func (c *WordlistChecker) Check(_ context.Context, body string) (Verdict, string, error) {
	b := strings.ToLower(body)
	for _, term := range c.banned {
		if strings.Contains(b, term) {
			return VerdictReject, "message contains prohibited content", nil
		}
	}
	for _, term := range c.watched {
		if strings.Contains(b, term) {
			return VerdictFlag, "message held for review", nil
		}
	}
	return VerdictApprove, "", nil
}
