package flow

import "encoding/json"

// Message is a control-channel message variant.
type Message interface {
	messageType() string
}

// StageAdvance moves the conversation to a named stage.
type StageAdvance struct {
	Stage        StageKey
	AgentMessage string
}

// ChoiceSelected records a structured choice (e.g. a payment route). It does
// not move the stage unless NextStage is set.
type ChoiceSelected struct {
	Stage        StageKey
	Choice       string
	ChoiceTitle  string
	NextStage    StageKey
	AgentMessage string
}

// ForceReply asks the agent to speak now.
type ForceReply struct {
	Reason string
}

// SessionEnded signals that the agent considers the flow complete.
type SessionEnded struct {
	AgentMessage string
}

func (StageAdvance) messageType() string   { return "advance_stage" }
func (ChoiceSelected) messageType() string { return "choice" }
func (ForceReply) messageType() string     { return "force_reply" }
func (SessionEnded) messageType() string   { return "ended" }

// controlWire is the superset of fields seen on the control channel, in
// the shapes the remote agent sends and consumes.
type controlWire struct {
	Status        string   `json:"status,omitempty"`
	AdvanceStage  bool     `json:"advance_stage,omitempty"`
	Stage         StageKey `json:"stage,omitempty"`
	PaymentChoice string   `json:"payment_choice,omitempty"`
	Choice        string   `json:"choice,omitempty"`
	ChoiceTitle   string   `json:"choice_title,omitempty"`
	NextStage     StageKey `json:"next_stage,omitempty"`
	ForceReply    bool     `json:"force_reply,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	AgentMessage  string   `json:"agent_message,omitempty"`
}

// Encode serializes a message as one compact JSON object.
func Encode(m Message) ([]byte, error) {
	var w controlWire
	switch msg := m.(type) {
	case StageAdvance:
		w.AdvanceStage = true
		w.Stage = msg.Stage
		w.AgentMessage = msg.AgentMessage
	case ChoiceSelected:
		w.Stage = msg.Stage
		w.PaymentChoice = msg.Choice
		w.ChoiceTitle = msg.ChoiceTitle
		w.NextStage = msg.NextStage
		w.AgentMessage = msg.AgentMessage
	case ForceReply:
		w.ForceReply = true
		w.Reason = msg.Reason
	case SessionEnded:
		w.Status = "ended"
		w.AgentMessage = msg.AgentMessage
	}
	return json.Marshal(w)
}

// Parse decodes an inbound control payload. The second return is false for
// malformed or unrecognized payloads; such payloads are never an error.
// When advance/choice fields overlap in one message, next_stage and
// advance_stage are authoritative for position and choice fields are
// orthogonal metadata: Parse favors the choice variant and carries the
// stage movement in NextStage.
func Parse(payload []byte) (Message, bool) {
	var w controlWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, false
	}

	switch {
	case w.Status == "ended":
		return SessionEnded{AgentMessage: w.AgentMessage}, true
	case w.PaymentChoice != "" || w.Choice != "":
		choice := w.PaymentChoice
		if choice == "" {
			choice = w.Choice
		}
		next := w.NextStage
		if next == "" && w.AdvanceStage {
			next = w.Stage
		}
		return ChoiceSelected{
			Stage:        w.Stage,
			Choice:       choice,
			ChoiceTitle:  w.ChoiceTitle,
			NextStage:    next,
			AgentMessage: w.AgentMessage,
		}, true
	case w.AdvanceStage && w.Stage != "":
		return StageAdvance{Stage: w.Stage, AgentMessage: w.AgentMessage}, true
	case w.ForceReply:
		return ForceReply{Reason: w.Reason}, true
	}
	return nil, false
}
