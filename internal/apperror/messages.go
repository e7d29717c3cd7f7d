package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeRequiredField:   "Required field is missing",
	CodeInvalidInput:    "Invalid input provided",
	CodeInvalidFormat:   "Invalid data format",
	CodeValidationError: "Validation error",

	CodeConfigurationError: "Configuration error",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeConnectFailed:    "Failed to connect to upstream node",
	CodeSubscribeFailed:  "Subscription was not acknowledged",
	CodeStreamStalled:    "No message received within stall timeout",
	CodeConnectionClosed: "Upstream connection closed",
	CodeDecodeFailed:     "Failed to decode block head",

	CodeWebSocketSendError: "Failed to send WebSocket message",
	CodeWebSocketClosed:    "WebSocket connection closed",

	CodeInvalidBuckets: "Histogram buckets must be strictly ascending",

	CodeCircuitOpen: "Circuit breaker is open",
}
