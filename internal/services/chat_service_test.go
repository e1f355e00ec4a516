package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"crmdesk_backend/internal/config"
	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/models/chat"
	"crmdesk_backend/internal/repositories"
	"crmdesk_backend/internal/services"
	"crmdesk_backend/internal/services/dto"
	"crmdesk_backend/pkg/apperrors"
	"crmdesk_backend/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// stubResponder returns a canned reply and records invocations.
type stubResponder struct {
	mu      sync.Mutex
	reply   *services.AutoReply
	calls   int
	history []services.HistoryEntry
}

func (r *stubResponder) Reply(ctx context.Context, latest string, history []services.HistoryEntry) (*services.AutoReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.history = history
	return r.reply, nil
}

type fixture struct {
	db       *gorm.DB
	svc      services.ChatService
	clock    *fakeClock
	cfg      config.ChatConfig
	chatRepo repositories.ChatRepository

	admin    models.Actor
	agent    models.Actor
	customer models.Actor
	other    models.Actor
	guest    models.Actor
}

func newFixture(t *testing.T, opts ...func(*config.ChatConfig)) *fixture {
	t.Helper()

	db := helpers.NewTestDB(t)
	cfg := config.DefaultChatConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	clock := newFakeClock()
	chatRepo := repositories.NewChatRepository()
	svc := services.NewChatService(
		chatRepo,
		repositories.NewUserRepository(),
		repositories.NewCRMRepository(),
		cfg,
		nil, nil, nil,
		services.WithClock(clock.Now),
	)

	admin := helpers.SeedUser(t, db, "admin", models.UserRoleAdmin)
	agent := helpers.SeedUser(t, db, "agent", models.UserRoleAgent)
	customer := helpers.SeedUser(t, db, "customer", models.UserRoleCustomer)
	other := helpers.SeedUser(t, db, "other", models.UserRoleCustomer)
	guest := helpers.SeedUser(t, db, "guest", models.UserRoleGuest)

	return &fixture{
		db:       db,
		svc:      svc,
		clock:    clock,
		cfg:      cfg,
		chatRepo: chatRepo,
		admin:    models.Actor{ID: admin.ID, Role: admin.Role},
		agent:    models.Actor{ID: agent.ID, Role: agent.Role},
		customer: models.Actor{ID: customer.ID, Role: customer.Role},
		other:    models.Actor{ID: other.ID, Role: other.Role},
		guest:    models.Actor{ID: guest.ID, Role: guest.Role},
	}
}

func (f *fixture) createConversation(t *testing.T, creator models.Actor, participants ...string) *dto.ConversationResponse {
	t.Helper()
	conv, err := f.svc.CreateConversation(f.db, creator, &dto.CreateConversationRequest{
		ParticipantIDs: participants,
	})
	require.NoError(t, err)
	return conv
}

func (f *fixture) sendMessage(t *testing.T, sender models.Actor, conversationID, body string) *dto.MessageResponse {
	t.Helper()
	msg, err := f.svc.SendMessage(f.db, sender, &dto.SendMessageRequest{
		ConversationID: conversationID,
		Body:           body,
	})
	require.NoError(t, err)
	return msg
}

// --- Conversation lifecycle ---

func TestFindOrCreateForSubject(t *testing.T) {
	f := newFixture(t)
	client := helpers.SeedClient(t, f.db, "acme")

	req := &dto.FindOrCreateConversationRequest{
		SubjectType: string(chat.SubjectClient),
		SubjectID:   client.ID,
	}

	first, created, err := f.svc.FindOrCreateForSubject(f.db, f.agent, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, string(chat.SubjectClient), first.SubjectType)
	assert.Equal(t, client.ID, first.SubjectID)

	// The creating call leaves a system message behind.
	messages, err := f.svc.GetMessages(f.db, f.agent, first.ID, dto.MessageCriteria{})
	require.NoError(t, err)
	require.Len(t, messages.Messages, 1)
	assert.Equal(t, string(chat.MessageSystem), messages.Messages[0].Type)

	// Second call finds the same conversation and joins the caller.
	second, created, err := f.svc.FindOrCreateForSubject(f.db, f.admin, req)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	loaded, err := f.svc.GetConversation(f.db, f.admin, first.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Participants, 2)
}

func TestFindOrCreateForSubject_MissingSubject(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.FindOrCreateForSubject(f.db, f.agent, &dto.FindOrCreateConversationRequest{
		SubjectType: string(chat.SubjectClient),
		SubjectID:   "no-such-client",
	})
	assert.ErrorIs(t, err, apperrors.ErrSubjectNotFound)
}

func TestFindOrCreateForSubject_ArchivedIsNotReused(t *testing.T) {
	f := newFixture(t)
	client := helpers.SeedClient(t, f.db, "acme")

	req := &dto.FindOrCreateConversationRequest{
		SubjectType: string(chat.SubjectClient),
		SubjectID:   client.ID,
	}
	first, _, err := f.svc.FindOrCreateForSubject(f.db, f.agent, req)
	require.NoError(t, err)
	require.NoError(t, f.svc.ArchiveConversation(f.db, f.agent, first.ID))

	second, created, err := f.svc.FindOrCreateForSubject(f.db, f.agent, req)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConversationAccessControl(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)

	// Staff always see it.
	_, err := f.svc.GetConversation(f.db, f.agent, conv.ID)
	assert.NoError(t, err)

	// The creator sees it.
	_, err = f.svc.GetConversation(f.db, f.customer, conv.ID)
	assert.NoError(t, err)

	// An unrelated customer does not.
	_, err = f.svc.GetConversation(f.db, f.other, conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversationAccessDenied)

	// Adding them as a participant grants access.
	require.NoError(t, f.svc.AddParticipants(f.db, f.agent, conv.ID, &dto.AddParticipantsRequest{
		UserIDs: []string{f.other.ID},
	}))
	_, err = f.svc.GetConversation(f.db, f.other, conv.ID)
	assert.NoError(t, err)
}

func TestInternalConversationHiddenFromCustomers(t *testing.T) {
	f := newFixture(t)

	conv, err := f.svc.CreateConversation(f.db, f.agent, &dto.CreateConversationRequest{
		IsInternal:     true,
		ParticipantIDs: []string{f.customer.ID},
	})
	require.NoError(t, err)

	// Even a participant on the customer side cannot open an internal thread.
	_, err = f.svc.GetConversation(f.db, f.customer, conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversationAccessDenied)

	// And customers cannot create internal threads at all.
	_, err = f.svc.CreateConversation(f.db, f.customer, &dto.CreateConversationRequest{IsInternal: true})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)
}

func TestArchiveBlocksMutations(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	msg := f.sendMessage(t, f.customer, conv.ID, "hello")

	require.NoError(t, f.svc.ArchiveConversation(f.db, f.agent, conv.ID))

	_, err := f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "more",
	})
	assert.ErrorIs(t, err, apperrors.ErrConversationArchived)

	_, err = f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "changed"})
	assert.ErrorIs(t, err, apperrors.ErrConversationArchived)

	err = f.svc.PinMessage(f.db, f.agent, msg.ID)
	assert.ErrorIs(t, err, apperrors.ErrConversationArchived)

	// Reading stays allowed.
	_, err = f.svc.GetMessages(f.db, f.customer, conv.ID, dto.MessageCriteria{})
	assert.NoError(t, err)

	// Restore reopens the thread.
	require.NoError(t, f.svc.RestoreConversation(f.db, f.agent, conv.ID))
	_, err = f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "again",
	})
	assert.NoError(t, err)
}

func TestSetPriority(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)

	// Only staff may change priority.
	err := f.svc.SetPriority(f.db, f.customer, conv.ID, &dto.SetPriorityRequest{Priority: "high"})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	require.NoError(t, f.svc.SetPriority(f.db, f.agent, conv.ID, &dto.SetPriorityRequest{Priority: "high"}))

	got, err := f.svc.GetConversation(f.db, f.agent, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "high", got.Priority)

	err = f.svc.SetPriority(f.db, f.agent, conv.ID, &dto.SetPriorityRequest{Priority: "critical"})
	assert.Error(t, err)

	require.NoError(t, f.svc.ArchiveConversation(f.db, f.agent, conv.ID))
	err = f.svc.SetPriority(f.db, f.agent, conv.ID, &dto.SetPriorityRequest{Priority: "low"})
	assert.ErrorIs(t, err, apperrors.ErrConversationArchived)
}

func TestCreatorCannotBeRemoved(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer, f.other.ID)

	// Not by leaving, not by staff.
	assert.Error(t, f.svc.RemoveParticipant(f.db, f.customer, conv.ID, f.customer.ID))
	assert.Error(t, f.svc.RemoveParticipant(f.db, f.admin, conv.ID, f.customer.ID))

	// Other participants can still leave.
	require.NoError(t, f.svc.RemoveParticipant(f.db, f.other, conv.ID, f.other.ID))

	loaded, err := f.svc.GetConversation(f.db, f.customer, conv.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Participants, 1)
	assert.Equal(t, f.customer.ID, loaded.Participants[0].UserID)
}

// --- Messages ---

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)

	_, err := f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "   ",
	})
	assert.ErrorIs(t, err, apperrors.ErrEmptyMessageBody)

	long := make([]byte, 0, f.cfg.MaxBodyLength+1)
	for i := 0; i <= f.cfg.MaxBodyLength; i++ {
		long = append(long, 'a')
	}
	_, err = f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           string(long),
	})
	assert.ErrorIs(t, err, apperrors.ErrBodyTooLong)
}

func TestSendMessageReplyMustStayInConversation(t *testing.T) {
	f := newFixture(t)
	convA := f.createConversation(t, f.customer)
	convB := f.createConversation(t, f.customer)
	target := f.sendMessage(t, f.customer, convA.ID, "original")

	reply, err := f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: convA.ID,
		Body:           "same thread",
		ReplyToID:      &target.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, target.ID, *reply.ReplyToID)

	_, err = f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: convB.ID,
		Body:           "other thread",
		ReplyToID:      &target.ID,
	})
	assert.ErrorIs(t, err, apperrors.ErrReplyCrossConversation)
}

func TestInternalNotesHiddenFromCustomers(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)

	f.sendMessage(t, f.customer, conv.ID, "visible")
	_, err := f.svc.SendMessage(f.db, f.agent, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "internal note",
		IsInternalNote: true,
	})
	require.NoError(t, err)

	// Customers cannot write internal notes.
	_, err = f.svc.SendMessage(f.db, f.customer, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "sneaky",
		IsInternalNote: true,
	})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	staffView, err := f.svc.GetMessages(f.db, f.agent, conv.ID, dto.MessageCriteria{})
	require.NoError(t, err)
	assert.Len(t, staffView.Messages, 2)

	customerView, err := f.svc.GetMessages(f.db, f.customer, conv.ID, dto.MessageCriteria{})
	require.NoError(t, err)
	require.Len(t, customerView.Messages, 1)
	assert.Equal(t, "visible", customerView.Messages[0].Body)
}

// --- Edits ---

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	msg := f.sendMessage(t, f.customer, conv.ID, "first")

	f.clock.Advance(time.Minute)
	edited, err := f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Body)
	assert.True(t, edited.IsEdited)
	require.NotNil(t, edited.EditedAt)

	f.clock.Advance(time.Minute)
	_, err = f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "third"})
	require.NoError(t, err)

	history, err := f.svc.GetEditHistory(f.db, f.customer, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", history.Original)
	assert.Equal(t, "third", history.Current)
	require.Len(t, history.History, 2)
	assert.Equal(t, "first", history.History[0].PreviousBody)
	assert.Equal(t, "second", history.History[1].PreviousBody)
}

func TestEditMessage_NoChangeRejected(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	msg := f.sendMessage(t, f.customer, conv.ID, "same")

	_, err := f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "same"})
	assert.ErrorIs(t, err, apperrors.ErrNoChange)

	// Whitespace-only differences are no change either.
	_, err = f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "  same  "})
	assert.ErrorIs(t, err, apperrors.ErrNoChange)

	// No history entry was written.
	history, err := f.svc.GetEditHistory(f.db, f.customer, msg.ID)
	require.NoError(t, err)
	assert.False(t, history.IsEdited)
	assert.Empty(t, history.History)
}

func TestEditMessage_WindowExpires(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	msg := f.sendMessage(t, f.customer, conv.ID, "original")

	// Just inside the window still works.
	f.clock.Advance(f.cfg.EditWindow() - time.Second)
	_, err := f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "in time"})
	require.NoError(t, err)

	// Past the window the edit is refused, even for the sender.
	f.clock.Advance(2 * time.Second)
	_, err = f.svc.EditMessage(f.db, f.customer, msg.ID, &dto.EditMessageRequest{Body: "too late"})
	assert.ErrorIs(t, err, apperrors.ErrEditWindowExpired)
}

func TestEditMessage_OnlySender(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	msg := f.sendMessage(t, f.customer, conv.ID, "mine")

	// Not even an admin may edit someone else's message.
	_, err := f.svc.EditMessage(f.db, f.admin, msg.ID, &dto.EditMessageRequest{Body: "taken over"})
	assert.ErrorIs(t, err, apperrors.ErrNotMessageSender)
}

// --- Pins ---

func TestPinLimit(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)

	var msgs []*dto.MessageResponse
	for i := 0; i < f.cfg.PinLimit+1; i++ {
		msgs = append(msgs, f.sendMessage(t, f.customer, conv.ID, "m"))
		f.clock.Advance(time.Second)
	}

	for i := 0; i < f.cfg.PinLimit; i++ {
		require.NoError(t, f.svc.PinMessage(f.db, f.agent, msgs[i].ID))
	}

	err := f.svc.PinMessage(f.db, f.agent, msgs[f.cfg.PinLimit].ID)
	assert.ErrorIs(t, err, apperrors.ErrPinLimitExceeded)

	// Re-pinning an already pinned message is a no-op, not an overflow.
	assert.NoError(t, f.svc.PinMessage(f.db, f.agent, msgs[0].ID))

	// Unpinning frees a slot.
	require.NoError(t, f.svc.UnpinMessage(f.db, f.agent, msgs[0].ID))
	assert.NoError(t, f.svc.PinMessage(f.db, f.agent, msgs[f.cfg.PinLimit].ID))
}

func TestReorderPinnedMessages(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)

	a := f.sendMessage(t, f.customer, conv.ID, "a")
	b := f.sendMessage(t, f.customer, conv.ID, "b")
	c := f.sendMessage(t, f.customer, conv.ID, "c")
	for _, m := range []*dto.MessageResponse{a, b, c} {
		require.NoError(t, f.svc.PinMessage(f.db, f.agent, m.ID))
		f.clock.Advance(time.Second)
	}

	require.NoError(t, f.svc.ReorderPinnedMessages(f.db, f.agent, conv.ID, &dto.ReorderPinsRequest{
		MessageIDs: []string{c.ID, a.ID, b.ID},
	}))

	pins, err := f.svc.GetPinnedMessages(f.db, f.agent, conv.ID)
	require.NoError(t, err)
	require.Len(t, pins, 3)
	assert.Equal(t, c.ID, pins[0].ID)
	assert.Equal(t, a.ID, pins[1].ID)
	assert.Equal(t, b.ID, pins[2].ID)
}

func TestReorderPins_Rejections(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	otherConv := f.createConversation(t, f.customer)

	pinned := f.sendMessage(t, f.customer, conv.ID, "pinned")
	unpinned := f.sendMessage(t, f.customer, conv.ID, "loose")
	foreign := f.sendMessage(t, f.customer, otherConv.ID, "elsewhere")
	require.NoError(t, f.svc.PinMessage(f.db, f.agent, pinned.ID))
	require.NoError(t, f.svc.PinMessage(f.db, f.agent, foreign.ID))

	err := f.svc.ReorderPinnedMessages(f.db, f.agent, conv.ID, &dto.ReorderPinsRequest{
		MessageIDs: []string{pinned.ID, foreign.ID},
	})
	assert.ErrorIs(t, err, apperrors.ErrCrossConversationPin)

	err = f.svc.ReorderPinnedMessages(f.db, f.agent, conv.ID, &dto.ReorderPinsRequest{
		MessageIDs: []string{pinned.ID, unpinned.ID},
	})
	assert.ErrorIs(t, err, apperrors.ErrMessageNotPinned)

	// A failed reorder leaves the existing order intact.
	pins, err := f.svc.GetPinnedMessages(f.db, f.agent, conv.ID)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.Equal(t, pinned.ID, pins[0].ID)
}

// --- Reactions ---

func TestReactionsIdempotent(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer)
	msg := f.sendMessage(t, f.customer, conv.ID, "react to me")

	react := func(actor models.Actor, emoji string) error {
		return f.svc.AddReaction(f.db, actor, msg.ID, &dto.ReactionRequest{Emoji: emoji})
	}

	require.NoError(t, react(f.customer, "👍"))
	require.NoError(t, react(f.customer, "👍")) // duplicate add is a no-op
	require.NoError(t, react(f.agent, "👍"))
	require.NoError(t, react(f.customer, "🎉"))

	loaded, err := f.chatRepo.FindMessageByID(f.db, msg.ID)
	require.NoError(t, err)
	reactions := loaded.ReactionMap()
	assert.Len(t, reactions["👍"], 2)
	assert.Len(t, reactions["🎉"], 1)

	require.NoError(t, f.svc.RemoveReaction(f.db, f.customer, msg.ID, "👍"))
	require.NoError(t, f.svc.RemoveReaction(f.db, f.customer, msg.ID, "👍")) // already gone

	loaded, err = f.chatRepo.FindMessageByID(f.db, msg.ID)
	require.NoError(t, err)
	reactions = loaded.ReactionMap()
	assert.Len(t, reactions["👍"], 1)
}

// --- Comments ---

func TestComments(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer, f.other.ID)
	msg := f.sendMessage(t, f.customer, conv.ID, "discuss")

	comment, err := f.svc.AddComment(f.db, f.other, msg.ID, &dto.AddCommentRequest{Body: "a comment"})
	require.NoError(t, err)

	// A different non-admin user may not delete it.
	err = f.svc.DeleteComment(f.db, f.customer, comment.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotCommentAuthor)

	// The author may.
	require.NoError(t, f.svc.DeleteComment(f.db, f.other, comment.ID))

	// An admin may delete anyone's comment.
	comment2, err := f.svc.AddComment(f.db, f.other, msg.ID, &dto.AddCommentRequest{Body: "another"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteComment(f.db, f.admin, comment2.ID))

	comments, err := f.svc.GetComments(f.db, f.customer, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

// --- Read state ---

func TestUnreadCountAndMarkRead(t *testing.T) {
	f := newFixture(t)
	conv := f.createConversation(t, f.customer, f.other.ID)

	f.sendMessage(t, f.customer, conv.ID, "one")
	f.sendMessage(t, f.customer, conv.ID, "two")

	count, err := f.svc.GetUnreadCount(f.db, f.other, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Own messages never count as unread.
	count, err = f.svc.GetUnreadCount(f.db, f.customer, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	require.NoError(t, f.svc.MarkConversationRead(f.db, f.other, conv.ID))
	count, err = f.svc.GetUnreadCount(f.db, f.other, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Marking twice is harmless.
	require.NoError(t, f.svc.MarkConversationRead(f.db, f.other, conv.ID))

	f.sendMessage(t, f.customer, conv.ID, "three")
	count, err = f.svc.GetUnreadCount(f.db, f.other, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// --- Auto-responder ---

func TestAutoResponderRepliesInGuestConversations(t *testing.T) {
	db := helpers.NewTestDB(t)
	cfg := config.DefaultChatConfig()
	cfg.AIResponder.Enabled = true

	responder := &stubResponder{reply: &services.AutoReply{Message: "How can I help?"}}
	chatRepo := repositories.NewChatRepository()
	svc := services.NewChatService(
		chatRepo,
		repositories.NewUserRepository(),
		repositories.NewCRMRepository(),
		cfg,
		nil, nil,
		responder,
	)

	guestUser := helpers.SeedUser(t, db, "guest", models.UserRoleGuest)
	agentUser := helpers.SeedUser(t, db, "agent", models.UserRoleAgent)
	guest := models.Actor{ID: guestUser.ID, Role: guestUser.Role}
	agent := models.Actor{ID: agentUser.ID, Role: agentUser.Role}
	session := helpers.SeedGuestSession(t, db, "visitor-1")

	conv, _, err := svc.FindOrCreateForSubject(db, guest, &dto.FindOrCreateConversationRequest{
		SubjectType: string(chat.SubjectGuestSession),
		SubjectID:   session.ID,
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(db, guest, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "Is anyone there?",
	})
	require.NoError(t, err)

	// The bot reply lands asynchronously.
	require.Eventually(t, func() bool {
		messages, _, err := chatRepo.FindMessagesByConversation(db, conv.ID, repositories.MessageCriteria{IncludeInternal: true})
		if err != nil {
			return false
		}
		for _, m := range messages {
			if m.SenderID == cfg.AIResponder.BotUserID {
				return m.Body == "How can I help?"
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	// Staff messages do not wake the responder.
	responder.mu.Lock()
	before := responder.calls
	responder.mu.Unlock()
	_, err = svc.SendMessage(db, agent, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "An agent is here now.",
	})
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	responder.mu.Lock()
	after := responder.calls
	responder.mu.Unlock()
	assert.Equal(t, before, after)
}

func TestAutoResponderNilReplyMeansNoMessage(t *testing.T) {
	db := helpers.NewTestDB(t)
	cfg := config.DefaultChatConfig()
	cfg.AIResponder.Enabled = true

	responder := &stubResponder{reply: nil}
	chatRepo := repositories.NewChatRepository()
	svc := services.NewChatService(
		chatRepo,
		repositories.NewUserRepository(),
		repositories.NewCRMRepository(),
		cfg,
		nil, nil,
		responder,
	)

	guestUser := helpers.SeedUser(t, db, "guest", models.UserRoleGuest)
	guest := models.Actor{ID: guestUser.ID, Role: guestUser.Role}
	session := helpers.SeedGuestSession(t, db, "visitor-2")

	conv, _, err := svc.FindOrCreateForSubject(db, guest, &dto.FindOrCreateConversationRequest{
		SubjectType: string(chat.SubjectGuestSession),
		SubjectID:   session.ID,
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(db, guest, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "Hello?",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		responder.mu.Lock()
		defer responder.mu.Unlock()
		return responder.calls == 1
	}, 2*time.Second, 20*time.Millisecond)

	messages, _, err := chatRepo.FindMessagesByConversation(db, conv.ID, repositories.MessageCriteria{IncludeInternal: true})
	require.NoError(t, err)
	for _, m := range messages {
		assert.NotEqual(t, cfg.AIResponder.BotUserID, m.SenderID)
	}
}

func TestAutoResponderSeesRecentHistory(t *testing.T) {
	db := helpers.NewTestDB(t)
	cfg := config.DefaultChatConfig()
	cfg.AIResponder.Enabled = true

	responder := &stubResponder{reply: nil}
	svc := services.NewChatService(
		repositories.NewChatRepository(),
		repositories.NewUserRepository(),
		repositories.NewCRMRepository(),
		cfg,
		nil, nil,
		responder,
	)

	guestUser := helpers.SeedUser(t, db, "guest", models.UserRoleGuest)
	agentUser := helpers.SeedUser(t, db, "agent", models.UserRoleAgent)
	guest := models.Actor{ID: guestUser.ID, Role: guestUser.Role}
	agent := models.Actor{ID: agentUser.ID, Role: agentUser.Role}
	session := helpers.SeedGuestSession(t, db, "visitor-3")

	conv, _, err := svc.FindOrCreateForSubject(db, guest, &dto.FindOrCreateConversationRequest{
		SubjectType: string(chat.SubjectGuestSession),
		SubjectID:   session.ID,
	})
	require.NoError(t, err)

	// A long thread: 24 agent turns, then the guest's question. Staff sends
	// never wake the responder, so the single call below sees the full tail.
	for i := 1; i <= 24; i++ {
		_, err = svc.SendMessage(db, agent, &dto.SendMessageRequest{
			ConversationID: conv.ID,
			Body:           fmt.Sprintf("turn %02d", i),
		})
		require.NoError(t, err)
	}
	_, err = svc.SendMessage(db, guest, &dto.SendMessageRequest{
		ConversationID: conv.ID,
		Body:           "latest question",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		responder.mu.Lock()
		defer responder.mu.Unlock()
		return responder.calls == 1
	}, 2*time.Second, 20*time.Millisecond)

	responder.mu.Lock()
	history := responder.history
	responder.mu.Unlock()

	// The newest 20 turns, oldest to newest, ending with the question that
	// triggered the reply.
	require.Len(t, history, 20)
	assert.Equal(t, "turn 06", history[0].Text)
	assert.Equal(t, "latest question", history[len(history)-1].Text)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
	for _, entry := range history[:len(history)-1] {
		assert.Equal(t, services.HistoryRoleAgent, entry.Role)
	}
	assert.Equal(t, services.HistoryRoleUser, history[len(history)-1].Role)
}
