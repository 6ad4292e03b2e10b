// Package hook defines the wire types exchanged with the host runtime on
// every termination attempt.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
)

// StopEventName is the event-kind tag the host uses for termination attempts.
const StopEventName = "Stop"

// StopEvent is the record the host runtime delivers on stdin when the agent
// tries to end its turn. Unknown fields are ignored for forward compatibility.
type StopEvent struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
}

// ReadStopEvent decodes a StopEvent from r.
func ReadStopEvent(r io.Reader) (*StopEvent, error) {
	var ev StopEvent
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return nil, fmt.Errorf("failed to decode stop event: %w", err)
	}
	return &ev, nil
}

// Verdicts for Decision.Decision.
const (
	DecisionApprove = "approve"
	DecisionBlock   = "block"
)

// Decision is the record emitted back to the host runtime. When the decision
// is "block", Reason carries the exact text re-injected as the agent's next
// instruction. SystemMessage is shown to the user regardless of decision.
type Decision struct {
	Decision      string `json:"decision"`
	Reason        string `json:"reason,omitempty"`
	SystemMessage string `json:"systemMessage,omitempty"`
}

// Approve returns an allow-exit decision with an optional user-facing message.
func Approve(systemMessage string) Decision {
	return Decision{Decision: DecisionApprove, SystemMessage: systemMessage}
}

// Block returns a block-exit decision whose reason is re-injected verbatim.
func Block(reason, systemMessage string) Decision {
	return Decision{Decision: DecisionBlock, Reason: reason, SystemMessage: systemMessage}
}

// Write encodes the decision as JSON to w.
func (d Decision) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}
	return nil
}
