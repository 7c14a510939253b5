package live

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWordlistChecker(t *testing.T) {
	checker := NewWordlistChecker([]string{"Spam"}, []string{"crypto"})
	ctx := context.Background()

	verdict, _, err := checker.Check(ctx, "totally fine")
	require.NoError(t, err)
	assert.Equal(t, VerdictApprove, verdict)

	verdict, reason, err := checker.Check(ctx, "buy SPAM now")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, verdict)
	assert.NotEmpty(t, reason)

	verdict, _, err = checker.Check(ctx, "new Crypto scheme")
	require.NoError(t, err)
	assert.Equal(t, VerdictFlag, verdict)
}

func newModeratedRegistry(threshold int) *Registry {
	checker := NewWordlistChecker([]string{"badword"}, []string{"sketchy"})
	return NewRegistry(Config{ViolationThreshold: threshold}, nil, nil, checker, zap.NewNop())
}

func TestAutoBlockAfterThreshold(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()
	ctx := context.Background()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	viewerSink := mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)

	// First two violations warn; the third crosses into blocked.
	for i := 0; i < 2; i++ {
		err := r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "badword here"})
		assert.ErrorIs(t, err, ErrRejected)
	}
	err := r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "badword again"})
	assert.ErrorIs(t, err, ErrUserBlocked)

	rec, err := r.ModerationRecordOf(sessionID, hostID, viewerID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, rec.SessionID)
	assert.Equal(t, 3, rec.ViolationCount)
	assert.True(t, rec.Blocked)

	// A blocked user is short-circuited before any content evaluation.
	err = r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "perfectly clean"})
	assert.ErrorIs(t, err, ErrUserBlocked)
	history, _ := r.Replay(sessionID)
	assert.Empty(t, history)

	// Unban resets the record; the next message is evaluated again.
	require.NoError(t, r.Unban(sessionID, hostID, viewerID))
	require.NoError(t, r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "perfectly clean"}))
	history, _ = r.Replay(sessionID)
	require.Len(t, history, 1)
	assert.Equal(t, "perfectly clean", history[0].Body)

	assert.Len(t, viewerSink.byName("new_message"), 1)
}

func TestUnbanIdempotentAndHostOnly(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)

	assert.ErrorIs(t, r.Unban(sessionID, viewerID, viewerID), ErrNotHost)

	// Unbanning a clean user is a no-op.
	require.NoError(t, r.Unban(sessionID, hostID, viewerID))
	require.NoError(t, r.Unban(sessionID, hostID, viewerID))

	rec, err := r.ModerationRecordOf(sessionID, hostID, viewerID)
	require.NoError(t, err)
	assert.Zero(t, rec.ViolationCount)
	assert.False(t, rec.Blocked)
}

func TestManualReviewFlow(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()
	ctx := context.Background()

	hostSink := mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	viewerSink := mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)
	require.NoError(t, r.SetPolicy(sessionID, hostID, Policy{AutoCheck: true, ManualReview: true, ViolationThreshold: 3}))

	require.NoError(t, r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "a sketchy offer", ClientRef: "ref-1"}))

	// Held messages never reach the room or the replay window.
	history, _ := r.Replay(sessionID)
	assert.Empty(t, history)

	review, ok := hostSink.lastByName("message_review").(MessageReview)
	require.True(t, ok)
	assert.Equal(t, viewerID, review.SenderID)
	assert.Equal(t, "a sketchy offer", review.Body)

	pending, ok := viewerSink.lastByName("message_pending").(MessagePending)
	require.True(t, ok)
	assert.Equal(t, review.Ref, pending.Ref)
	assert.Equal(t, "ref-1", pending.ClientRef)

	reviews, err := r.PendingReviews(sessionID, hostID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)

	_, err = r.PendingReviews(sessionID, viewerID)
	assert.ErrorIs(t, err, ErrNotHost)

	// Approval releases the message with a fresh id and the sender's ref.
	require.NoError(t, r.Moderate(ctx, sessionID, hostID, ModerateRequest{Ref: review.Ref, Decision: DecisionApprove}))
	history, _ = r.Replay(sessionID)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].ID)

	released, ok := viewerSink.lastByName("new_message").(NewMessage)
	require.True(t, ok)
	assert.Equal(t, "ref-1", released.ClientRef)

	reviews, err = r.PendingReviews(sessionID, hostID)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestManualReviewReject(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()
	ctx := context.Background()

	hostSink := mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	viewerSink := mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)
	require.NoError(t, r.SetPolicy(sessionID, hostID, Policy{AutoCheck: true, ManualReview: true, ViolationThreshold: 3}))

	require.NoError(t, r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "a sketchy offer"}))
	review := hostSink.lastByName("message_review").(MessageReview)

	require.NoError(t, r.Moderate(ctx, sessionID, hostID, ModerateRequest{Ref: review.Ref, Decision: DecisionReject}))

	// The rejection counts as a violation and is reported to the sender only.
	rec, err := r.ModerationRecordOf(sessionID, hostID, viewerID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ViolationCount)
	assert.False(t, rec.Blocked)
	assert.NotNil(t, viewerSink.lastByName("error"))

	history, _ := r.Replay(sessionID)
	assert.Empty(t, history)

	// A ruled-on ref cannot be ruled on twice.
	err = r.Moderate(ctx, sessionID, hostID, ModerateRequest{Ref: review.Ref, Decision: DecisionApprove})
	assert.ErrorIs(t, err, ErrUnknownReview)
}

func TestManualReviewBlock(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()
	ctx := context.Background()

	hostSink := mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)
	require.NoError(t, r.SetPolicy(sessionID, hostID, Policy{AutoCheck: true, ManualReview: true, ViolationThreshold: 3}))

	require.NoError(t, r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "a sketchy offer"}))
	review := hostSink.lastByName("message_review").(MessageReview)

	require.NoError(t, r.Moderate(ctx, sessionID, hostID, ModerateRequest{Ref: review.Ref, Decision: DecisionBlock}))

	rec, err := r.ModerationRecordOf(sessionID, hostID, viewerID)
	require.NoError(t, err)
	assert.True(t, rec.Blocked)

	err = r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "clean"})
	assert.ErrorIs(t, err, ErrUserBlocked)
}

func TestModerateRequiresHost(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)
	ctx := context.Background()

	err := r.Moderate(ctx, sessionID, viewerID, ModerateRequest{Ref: "x", Decision: DecisionApprove})
	assert.ErrorIs(t, err, ErrNotHost)

	err = r.Moderate(ctx, sessionID, hostID, ModerateRequest{Ref: "x", Decision: Decision("promote")})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestFlagWithoutManualReviewApproves(t *testing.T) {
	r := newModeratedRegistry(3)
	sessionID := uuid.New()
	hostID := uuid.New()
	viewerID := uuid.New()
	ctx := context.Background()

	mustJoin(t, r, sessionID, hostID, "host", RoleHost)
	mustJoin(t, r, sessionID, viewerID, "viewer", RoleViewer)

	// Default policy has manual review off: flagged content passes through.
	require.NoError(t, r.SubmitMessage(ctx, sessionID, viewerID, SubmitRequest{Body: "a sketchy offer"}))
	history, _ := r.Replay(sessionID)
	require.Len(t, history, 1)
}
