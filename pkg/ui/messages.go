package ui

// Message types for TUI updates

// ErrorMsg is sent when the pipeline reports an error.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically; each tick polls the source.
type TickMsg struct{}
