package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"

	// Server -> Client
	TypeQuestionStats = "question_stats"
	TypePong          = "pong"
	TypeError         = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Client Messages (incoming)

type SubscribePayload struct {
	QuestionID string `json:"question_id"`
}

// Server Messages (outgoing)

type QuestionStatsPayload struct {
	QuestionID           string `json:"question_id"`
	ChoicesCount         int    `json:"choices_count"`
	InactiveChoicesCount int    `json:"inactive_choices_count"`
	ActiveChoicesCount   int    `json:"active_choices_count"`
	PromptsCount         int    `json:"prompts_count"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
