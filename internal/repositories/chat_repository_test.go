package repositories_test

import (
	"fmt"
	"testing"
	"time"

	"crmdesk_backend/internal/models"
	"crmdesk_backend/internal/models/chat"
	"crmdesk_backend/internal/repositories"
	"crmdesk_backend/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedConversation(t *testing.T, db *gorm.DB, repo repositories.ChatRepository, creatorID string) *chat.Conversation {
	t.Helper()
	conv := &chat.Conversation{
		Subject:       chat.SubjectRef{Type: chat.SubjectNone},
		CreatorID:     creatorID,
		Priority:      chat.PriorityNormal,
		Status:        chat.ConversationActive,
		LastMessageAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateConversation(db, conv))
	return conv
}

func TestTouchLastMessageAtIsMonotonic(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "creator")

	later := conv.LastMessageAt.Add(time.Hour)
	require.NoError(t, repo.TouchLastMessageAt(db, conv.ID, later))

	// An out-of-order touch with an older timestamp must not move the
	// watermark backwards.
	require.NoError(t, repo.TouchLastMessageAt(db, conv.ID, conv.LastMessageAt.Add(time.Minute)))

	loaded, err := repo.FindConversationByID(db, conv.ID)
	require.NoError(t, err)
	assert.True(t, loaded.LastMessageAt.Equal(later), "expected %v, got %v", later, loaded.LastMessageAt)
}

func TestAddParticipantsIgnoresDuplicates(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "creator")

	now := time.Now()
	add := func() error {
		return repo.AddParticipants(db, []*chat.ConversationParticipant{{
			ConversationID: conv.ID,
			UserID:         "user-1",
			Role:           "member",
			JoinedAt:       now,
			LastSeenAt:     now,
		}})
	}
	require.NoError(t, add())
	require.NoError(t, add())

	participants, err := repo.FindParticipantsByConversation(db, conv.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestReadReceiptsAreIdempotent(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "sender")

	msg := &chat.Message{
		ConversationID: conv.ID,
		SenderID:       "sender",
		Type:           chat.MessageText,
		Body:           "hello",
		Status:         chat.StatusSent,
	}
	require.NoError(t, repo.CreateMessage(db, msg))

	receipts := []*chat.MessageReadReceipt{{
		MessageID: msg.ID,
		UserID:    "reader",
		ReadAt:    time.Now(),
	}}
	require.NoError(t, repo.CreateReadReceipts(db, receipts))

	count, err := repo.GetUnreadCount(db, conv.ID, "reader")
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Replaying the receipt must not error or double-count.
	require.NoError(t, repo.CreateReadReceipts(db, []*chat.MessageReadReceipt{{
		MessageID: msg.ID,
		UserID:    "reader",
		ReadAt:    time.Now(),
	}}))

	var total int64
	require.NoError(t, db.Model(&chat.MessageReadReceipt{}).Count(&total).Error)
	assert.EqualValues(t, 1, total)
}

func TestFindActiveConversationBySubjectSkipsArchived(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()

	subject := chat.SubjectRef{Type: chat.SubjectClient, ID: "client-1"}
	conv := &chat.Conversation{
		Subject:       subject,
		CreatorID:     "creator",
		Priority:      chat.PriorityNormal,
		Status:        chat.ConversationActive,
		LastMessageAt: time.Now(),
	}
	require.NoError(t, repo.CreateConversation(db, conv))

	found, err := repo.FindActiveConversationBySubject(db, subject)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	require.NoError(t, repo.UpdateConversationStatus(db, conv.ID, chat.ConversationArchived))
	_, err = repo.FindActiveConversationBySubject(db, subject)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFindMessagesFiltersInternalNotes(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "creator")

	require.NoError(t, repo.CreateMessage(db, &chat.Message{
		ConversationID: conv.ID, SenderID: "a", Type: chat.MessageText, Body: "public", Status: chat.StatusSent,
	}))
	require.NoError(t, repo.CreateMessage(db, &chat.Message{
		ConversationID: conv.ID, SenderID: "a", Type: chat.MessageText, Body: "note", Status: chat.StatusSent,
		IsInternalNote: true,
	}))

	visible, total, err := repo.FindMessagesByConversation(db, conv.ID, repositories.MessageCriteria{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, visible, 1)
	assert.Equal(t, "public", visible[0].Body)

	all, total, err := repo.FindMessagesByConversation(db, conv.ID, repositories.MessageCriteria{IncludeInternal: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)
}

func TestFindMessagesNewestFirstReturnsRecentTail(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "creator")

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		require.NoError(t, repo.CreateMessage(db, &chat.Message{
			ConversationID: conv.ID, SenderID: "a", Type: chat.MessageText,
			Body:      fmt.Sprintf("msg %02d", i),
			Status:    chat.StatusSent,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	messages, total, err := repo.FindMessagesByConversation(db, conv.ID, repositories.MessageCriteria{
		Limit:       20,
		NewestFirst: true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 25, total)
	require.Len(t, messages, 20)
	assert.Equal(t, "msg 24", messages[0].Body)
	assert.Equal(t, "msg 05", messages[19].Body)
}

func TestAddReactionDuplicateIsNoOp(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "creator")

	msg := &chat.Message{
		ConversationID: conv.ID, SenderID: "a", Type: chat.MessageText, Body: "hi", Status: chat.StatusSent,
	}
	require.NoError(t, repo.CreateMessage(db, msg))

	add := func() error {
		return repo.AddReaction(db, &chat.MessageReaction{
			MessageID: msg.ID,
			UserID:    "u1",
			Emoji:     "👍",
		})
	}
	require.NoError(t, add())
	// A replay of the same (message, user, emoji) triple lands on the
	// identity index and must be swallowed, not surfaced.
	require.NoError(t, add())

	reactions, err := repo.FindReactionsByMessage(db, msg.ID)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
}

func TestLockConversation(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewChatRepository()
	conv := seedConversation(t, db, repo, "creator")

	tx := db.Begin()
	require.NoError(t, tx.Error)
	defer tx.Rollback()

	require.NoError(t, repo.LockConversation(tx, conv.ID))
	assert.ErrorIs(t, repo.LockConversation(tx, "missing"), gorm.ErrRecordNotFound)
}

func TestCreatedAtFilledOnCreate(t *testing.T) {
	db := helpers.NewTestDB(t)
	user := helpers.SeedUser(t, db, "creator", models.UserRoleCustomer)
	assert.False(t, user.CreatedAt.IsZero())
}
