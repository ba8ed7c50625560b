package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes pushed by the viewer.
const (
	EventFailed    = "EVENT.FAILED"
	HookPanicked   = "HOOK.PANIC"
	HookInert      = "HOOK.INERT"
	StreamDown     = "STREAM.DISCONNECTED"
	TestRunning    = "TEST.RUNNING"
	TestDone       = "TEST.DONE"
	TestUnknown    = "TEST.UNKNOWN"
	ControlInvalid = "CONTROL.INVALID"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	At             time.Time      `json:"at"`
}

// Sink receives diagnostics, e.g. the websocket hub.
type Sink interface {
	PushDiag(d Diagnostic)
}

// Discard drops every diagnostic.
type Discard struct{}

func (Discard) PushDiag(Diagnostic) {}
