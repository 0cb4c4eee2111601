package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/papercomputeco/chatbox/pkg/schema"
)

// FallbackMessage replaces the reply text when the backend answered
// without a usable message.
const FallbackMessage = "No response from AI service."

// ChatResponse is the backend's reply shaped for the caller. Every field is
// always present on the wire. Numbers keep the backend's literal text.
type ChatResponse struct {
	ChatBox          ChatBox     `json:"chat_box"`
	ModelUsed        string      `json:"model_used"`
	Timestamp        string      `json:"timestamp"`
	ProcessingTimeMs json.Number `json:"processing_time_ms"`
	PromptTokens     json.Number `json:"prompt_tokens"`
	CompletionTokens json.Number `json:"completion_tokens"`
	TotalTokens      json.Number `json:"total_tokens"`
	SessionID        string      `json:"session_id"`
	ChatID           string      `json:"chat_id"`
}

// ResponseSchema is the structural contract for a ChatResponse. The strict
// form guards what is returned to callers; the type-only form is applied to
// backend payloads before defaults are filled in.
var ResponseSchema = schema.New(
	schema.Field{Key: "chat_box", Name: "chatBox", Kind: schema.Object, Required: true, Fields: chatBoxFields},
	schema.Field{Key: "model_used", Name: "modelUsed", Kind: schema.String, Required: true},
	schema.Field{Key: "timestamp", Name: "timestamp", Kind: schema.String, Required: true},
	schema.Field{Key: "processing_time_ms", Name: "processingTimeMs", Kind: schema.Number, Required: true},
	schema.Field{Key: "prompt_tokens", Name: "promptTokens", Kind: schema.Number, Required: true},
	schema.Field{Key: "completion_tokens", Name: "completionTokens", Kind: schema.Number, Required: true},
	schema.Field{Key: "total_tokens", Name: "totalTokens", Kind: schema.Number, Required: true},
	schema.Field{Key: "session_id", Name: "sessionId", Kind: schema.String, Required: true},
	schema.Field{Key: "chat_id", Name: "chatId", Kind: schema.String, Required: true},
	// Older backends reply with a bare {"response": "..."}.
	schema.Field{Key: "response", Name: "response", Kind: schema.String},
)

// Defaults are the values used for fields a backend payload leaves out.
type Defaults struct {
	// ModelUsed defaults to the model the caller asked for.
	ModelUsed string

	// SessionID defaults to the caller's session.
	SessionID string

	// ReceivedAt is rendered as the RFC 3339 UTC timestamp.
	ReceivedAt time.Time

	// Elapsed is the measured round trip, reported in milliseconds.
	Elapsed time.Duration
}

// DefaultsFor derives the Defaults for a reply to req.
func DefaultsFor(req *ChatRequest, receivedAt time.Time, elapsed time.Duration) Defaults {
	d := Defaults{ReceivedAt: receivedAt, Elapsed: elapsed}
	if req != nil {
		d.ModelUsed = req.Model
		d.SessionID = req.SessionID
	}
	return d
}

// Shaped reports how a backend payload was turned into a ChatResponse.
type Shaped struct {
	Response *ChatResponse

	// Fallback is true when FallbackMessage was substituted.
	Fallback bool

	// Defaulted lists the wire keys that were absent and filled in.
	Defaulted []string
}

type backendChatBox struct {
	Message *string         `json:"message"`
	Context json.RawMessage `json:"context"`
}

type backendResponse struct {
	ChatBox          *backendChatBox `json:"chat_box"`
	ModelUsed        *string         `json:"model_used"`
	Timestamp        *string         `json:"timestamp"`
	ProcessingTimeMs *json.Number    `json:"processing_time_ms"`
	PromptTokens     *json.Number    `json:"prompt_tokens"`
	CompletionTokens *json.Number    `json:"completion_tokens"`
	TotalTokens      *json.Number    `json:"total_tokens"`
	SessionID        *string         `json:"session_id"`
	ChatID           *string         `json:"chat_id"`
	Response         *string         `json:"response"`
}

// ShapeResponse turns a backend payload into a complete ChatResponse.
//
// Present fields must have their declared types and decode cleanly,
// otherwise a *schema.ValidationError is returned. The message is taken from
// chat_box.message, then the legacy "response" field, and falls back to
// FallbackMessage when both are empty. Every other absent field gets the
// value from d, zero for token counters, or "" for chat_id.
func ShapeResponse(body []byte, d Defaults) (*Shaped, error) {
	if err := ResponseSchema.ValidateTypes(body); err != nil {
		return nil, err
	}

	var in backendResponse
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, ResponseSchema.DecodeError(err)
	}

	out := &Shaped{Response: &ChatResponse{}}
	resp := out.Response
	missing := func(key string) {
		out.Defaulted = append(out.Defaulted, key)
	}

	switch {
	case in.ChatBox != nil && in.ChatBox.Message != nil && *in.ChatBox.Message != "":
		resp.ChatBox.Message = *in.ChatBox.Message
	case in.Response != nil && *in.Response != "":
		resp.ChatBox.Message = *in.Response
	default:
		resp.ChatBox.Message = FallbackMessage
		out.Fallback = true
		missing("chat_box.message")
	}
	if in.ChatBox != nil {
		resp.ChatBox.Context = normalizeContext(in.ChatBox.Context)
	}

	resp.ModelUsed = stringOr(in.ModelUsed, d.ModelUsed, "model_used", missing)
	resp.Timestamp = stringOr(in.Timestamp, d.ReceivedAt.UTC().Format(time.RFC3339), "timestamp", missing)
	resp.ProcessingTimeMs = numberOr(in.ProcessingTimeMs, intNumber(d.Elapsed.Milliseconds()), "processing_time_ms", missing)
	resp.PromptTokens = numberOr(in.PromptTokens, zero, "prompt_tokens", missing)
	resp.CompletionTokens = numberOr(in.CompletionTokens, zero, "completion_tokens", missing)
	resp.TotalTokens = numberOr(in.TotalTokens, addNumbers(resp.PromptTokens, resp.CompletionTokens), "total_tokens", missing)
	resp.SessionID = stringOr(in.SessionID, d.SessionID, "session_id", missing)
	resp.ChatID = stringOr(in.ChatID, "", "chat_id", missing)

	return out, nil
}

// Validate checks the encoded form of r against the strict ResponseSchema.
func (r *ChatResponse) Validate() error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding chat response: %w", err)
	}
	return ResponseSchema.Validate(data)
}

func stringOr(v *string, def, key string, missing func(string)) string {
	if v != nil {
		return *v
	}
	missing(key)
	return def
}

const zero = json.Number("0")

func numberOr(v *json.Number, def json.Number, key string, missing func(string)) json.Number {
	if v != nil {
		return *v
	}
	missing(key)
	return def
}

func intNumber(n int64) json.Number {
	return json.Number(strconv.FormatInt(n, 10))
}

// addNumbers sums two counters, exactly when both are int64 integers whose
// sum does not overflow.
func addNumbers(a, b json.Number) json.Number {
	x, errA := a.Int64()
	y, errB := b.Int64()
	if errA == nil && errB == nil {
		if sum := x + y; (y >= 0) == (sum >= x) {
			return intNumber(sum)
		}
	}

	fa, _ := a.Float64()
	fb, _ := b.Float64()
	return json.Number(strconv.FormatFloat(fa+fb, 'g', -1, 64))
}
