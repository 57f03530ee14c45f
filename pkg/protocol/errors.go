package protocol

// Error codes surfaced in HTTP response bodies.
const (
	ErrInvalidRequest  = "INVALID_REQUEST"
	ErrSessionNotReady = "SESSION_NOT_READY"
	ErrEngineError     = "ENGINE_ERROR"
)

// Per-recipient failure reasons in dispatch results.
const (
	ReasonInvalidNumber = "invalid_number"
	ReasonTimeout       = "timeout"
	ReasonSessionLost   = "session_lost"
	ReasonSendFailed    = "send_failed"
)
