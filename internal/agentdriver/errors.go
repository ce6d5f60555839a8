package agentdriver

import "errors"

// ErrAgentNotReady is returned when the coding agent never produced a
// detectable session id within the ready-wait window (spec §4.E).
var ErrAgentNotReady = errors.New("agent did not become ready in time")
