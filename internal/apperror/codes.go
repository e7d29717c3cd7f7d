package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeRequiredField   Code = "REQUIRED_FIELD"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidFormat   Code = "INVALID_FORMAT"
	CodeValidationError Code = "VALIDATION_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Upstream session error codes
const (
	// CodeConnectFailed: the transport handshake could not complete.
	CodeConnectFailed Code = "CONNECT_FAILED"
	// CodeSubscribeFailed: eth_subscribe was not acknowledged.
	CodeSubscribeFailed Code = "SUBSCRIBE_FAILED"
	// CodeStreamStalled: no message arrived within the stall timeout.
	CodeStreamStalled Code = "STREAM_STALLED"
	// CodeConnectionClosed: the transport terminated mid-stream.
	CodeConnectionClosed Code = "CONNECTION_CLOSED"
	// CodeDecodeFailed: a single message could not be decoded.
	CodeDecodeFailed Code = "DECODE_FAILED"

	// WebSocket errors
	CodeWebSocketSendError Code = "WEBSOCKET_SEND_ERROR"
	CodeWebSocketClosed    Code = "WEBSOCKET_CLOSED"

	// Aggregation errors
	CodeInvalidBuckets Code = "INVALID_BUCKETS"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
