package apperrors

import (
	"net/http"
)

/*
Predeclared errors and factories for the conversation core. Services return
these directly; the Gin handler maps them to HTTP responses.
*/

// --- Lookup failures (404) ---

func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

var ErrConversationNotFound = New(
	CodeNotFound,
	"chat",
	"Conversation not found",
	http.StatusNotFound,
)

var ErrMessageNotFound = New(
	CodeNotFound,
	"chat",
	"Message not found",
	http.StatusNotFound,
)

var ErrCommentNotFound = New(
	CodeNotFound,
	"chat",
	"Comment not found",
	http.StatusNotFound,
)

var ErrSubjectNotFound = New(
	CodeNotFound,
	"crm",
	"Referenced subject does not exist",
	http.StatusNotFound,
)

// --- Access failures (403) ---

var ErrConversationAccessDenied = New(
	CodeForbidden,
	"chat",
	"No access to this conversation",
	http.StatusForbidden,
)

// ErrNotMessageSender covers edits attempted by anyone but the author.
var ErrNotMessageSender = New(
	CodeForbidden,
	"chat",
	"Only the original sender may edit a message",
	http.StatusForbidden,
)

var ErrNotCommentAuthor = New(
	CodeForbidden,
	"chat",
	"Only the comment author or an administrator may delete a comment",
	http.StatusForbidden,
)

// --- Conversation / message state failures ---

// ErrConversationArchived rejects mutations against archived conversations.
var ErrConversationArchived = New(
	CodeConversationArchived,
	"chat",
	"Conversation is archived",
	http.StatusConflict,
)

// ErrEditWindowExpired rejects edits attempted past the configured window.
var ErrEditWindowExpired = New(
	CodeEditWindowExpired,
	"chat",
	"Message can no longer be edited",
	http.StatusUnprocessableEntity,
)

// ErrNoChange rejects edits whose new body equals the current one.
var ErrNoChange = New(
	CodeNoChange,
	"chat",
	"New message body is identical to the current one",
	http.StatusUnprocessableEntity,
)

// ErrPinLimitExceeded rejects pinning beyond the per-conversation cap.
var ErrPinLimitExceeded = New(
	CodePinLimitExceeded,
	"chat",
	"Pinned message limit reached for this conversation",
	http.StatusConflict,
)

// ErrCrossConversationPin rejects reorder requests mixing conversations.
var ErrCrossConversationPin = New(
	CodeCrossConversationPin,
	"chat",
	"All messages in a pin reorder must belong to the same conversation",
	http.StatusUnprocessableEntity,
)

var ErrMessageNotPinned = New(
	CodeInvalidOperation,
	"chat",
	"Message is not pinned",
	http.StatusUnprocessableEntity,
)

var ErrReplyCrossConversation = New(
	CodeInvalidOperation,
	"chat",
	"Reply target belongs to a different conversation",
	http.StatusUnprocessableEntity,
)

var ErrEmptyMessageBody = New(
	CodeValidationFailed,
	"chat",
	"Message body is required",
	http.StatusBadRequest,
)

var ErrBodyTooLong = New(
	CodeValidationFailed,
	"chat",
	"Message body exceeds the maximum length",
	http.StatusBadRequest,
)

var ErrTooManyAttachments = New(
	CodeLimitExceeded,
	"chat",
	"Attachment count exceeds the allowed limit",
	http.StatusBadRequest,
)

var ErrAttachmentTooLarge = New(
	CodeLimitExceeded,
	"chat",
	"Attachment size exceeds the allowed limit",
	http.StatusRequestEntityTooLarge,
)

// --- Generic factories ---

func ErrAlreadyExists(err error) *AppError {
	return Wrap(err, CodeAlreadyExists, "resource", "Resource already exists", http.StatusConflict)
}

func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

func ErrInvalidStatus(domain, message string) *AppError {
	return New(CodeInvalidStatus, domain, message, http.StatusBadRequest)
}

var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)
