package apperrors

// ErrorCode identifies a failure class independent of HTTP status.
type ErrorCode string

const (
	// System and unknown failures
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Generic business-logic failures
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeLimitExceeded    ErrorCode = "LIMIT_EXCEEDED"
	CodeInvalidStatus    ErrorCode = "INVALID_STATUS"
	CodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// Authentication and authorization
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
	CodeTokenExpired ErrorCode = "TOKEN_EXPIRED"

	// Conversation core
	CodeEditWindowExpired    ErrorCode = "EDIT_WINDOW_EXPIRED"
	CodeNoChange             ErrorCode = "NO_CHANGE"
	CodePinLimitExceeded     ErrorCode = "PIN_LIMIT_EXCEEDED"
	CodeCrossConversationPin ErrorCode = "CROSS_CONVERSATION_PIN"
	CodeConversationArchived ErrorCode = "CONVERSATION_ARCHIVED"
)
