// Package chat defines the chat request and response shapes exchanged with
// callers and with the downstream AI service.
package chat

import (
	"encoding/json"

	"github.com/papercomputeco/chatbox/pkg/schema"
)

// ChatBox carries the message text of a single turn plus optional free-form
// context. Context is opaque: it is accepted when it is a JSON object and
// passed through without being interpreted.
type ChatBox struct {
	Message string          `json:"message"`
	Context json.RawMessage `json:"context,omitempty"`
}

// ChatRequest is a caller's intent to converse.
//
// Generation parameters are only type-checked and keep their literal text,
// so large integers such as a seed are forwarded exactly. Stream is accepted
// and forwarded but responses are never streamed back.
type ChatRequest struct {
	ChatBox   ChatBox `json:"chat_box"`
	SessionID string  `json:"session_id,omitempty"`

	// Provider and Model select a backend model. Both are passed through.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	Temperature      *json.Number `json:"temperature,omitempty"`
	TopK             *json.Number `json:"top_k,omitempty"`
	TopP             *json.Number `json:"top_p,omitempty"`
	MaxTokens        *json.Number `json:"max_tokens,omitempty"`
	FrequencyPenalty *json.Number `json:"frequency_penalty,omitempty"`
	PresencePenalty  *json.Number `json:"presence_penalty,omitempty"`
	Seed             *json.Number `json:"seed,omitempty"`

	Stream        *bool    `json:"stream,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// chatBoxFields is shared by the request and response schemas.
var chatBoxFields = []schema.Field{
	{Key: "message", Name: "message", Kind: schema.String, Required: true},
	{Key: "context", Name: "context", Kind: schema.Object},
}

// RequestSchema is the structural contract for an inbound ChatRequest.
var RequestSchema = schema.New(
	schema.Field{Key: "chat_box", Name: "chatBox", Kind: schema.Object, Required: true, Fields: chatBoxFields},
	schema.Field{Key: "session_id", Name: "sessionId", Kind: schema.String},
	schema.Field{Key: "provider", Name: "provider", Kind: schema.String},
	schema.Field{Key: "model", Name: "model", Kind: schema.String},
	schema.Field{Key: "temperature", Name: "temperature", Kind: schema.Number},
	schema.Field{Key: "top_k", Name: "topK", Kind: schema.Number},
	schema.Field{Key: "top_p", Name: "topP", Kind: schema.Number},
	schema.Field{Key: "max_tokens", Name: "maxTokens", Kind: schema.Number},
	schema.Field{Key: "frequency_penalty", Name: "frequencyPenalty", Kind: schema.Number},
	schema.Field{Key: "presence_penalty", Name: "presencePenalty", Kind: schema.Number},
	schema.Field{Key: "seed", Name: "seed", Kind: schema.Number},
	schema.Field{Key: "stream", Name: "stream", Kind: schema.Bool},
	schema.Field{Key: "stop_sequences", Name: "stopSequences", Kind: schema.StringArray},
)

// ParseRequest validates body against RequestSchema and decodes it.
// Schema and decode failures are both returned as a *schema.ValidationError.
// body is not modified.
func ParseRequest(body []byte) (*ChatRequest, error) {
	if err := RequestSchema.Validate(body); err != nil {
		return nil, err
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, RequestSchema.DecodeError(err)
	}

	req.ChatBox.Context = normalizeContext(req.ChatBox.Context)
	return &req, nil
}

// normalizeContext drops an explicit JSON null so that it is omitted when
// the value is encoded again.
func normalizeContext(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}
