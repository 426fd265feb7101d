package event

import (
	"encoding/json"
	"time"

	"PPRealtime/tools/decode"
	"PPRealtime/tools/errs"
)

// Payload is the event body as published; it is forwarded to clients untouched.
type Payload map[string]any

// Envelope wraps a domain event on the broker: {"type","timestamp","data"}.
// Key is the broker message key and is not part of the JSON body.
type Envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data"`
	Key       string    `json:"-"`
}

func NewEnvelope(t Type, key string, data Payload) *Envelope {
	return &Envelope{Type: t, Timestamp: time.Now().UTC(), Data: data, Key: key}
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a broker record. Every failure is an errs.ErrMalformedEnvelope.
func Decode(key, value []byte) (*Envelope, error) {
	if len(value) == 0 {
		return nil, errs.ErrMalformedEnvelope.WrapMsg(nil, "empty record")
	}
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errs.ErrMalformedEnvelope.Wrap(err)
	}
	if !env.Type.Valid() {
		return nil, errs.ErrMalformedEnvelope.WrapMsg(nil, "unknown type", "type", string(env.Type))
	}
	if env.Data == nil {
		return nil, errs.ErrMalformedEnvelope.WrapMsg(nil, "missing data", "type", string(env.Type))
	}
	env.Key = string(key)
	return &env, nil
}

// Routing is the subset of payload fields the pipeline routes on.
type Routing struct {
	ID             string
	AltID          string
	MessageID      string
	ChannelID      string
	ConversationID string
	UserID         string
	Username       string
	RecipientID    string
	Type           string
}

// Routing extracts routing fields one by one, so a field of an unexpected shape only
// blanks itself. Numeric ids are formatted and nested user objects yield their id.
func (p Payload) Routing() Routing {
	m := map[string]any(p)
	r := Routing{
		ID:             decode.ReadID(m, "_id"),
		AltID:          decode.ReadID(m, "id"),
		MessageID:      decode.ReadID(m, "messageId"),
		ChannelID:      decode.ReadID(m, "channelId"),
		ConversationID: decode.ReadID(m, "conversationId"),
		UserID:         decode.ReadID(m, "userId"),
		Username:       decode.ReadString(m, "username"),
		RecipientID:    decode.ReadID(m, "recipientId"),
		Type:           decode.ReadString(m, "type"),
	}
	if r.Username == "" {
		if u, ok := m["userId"].(map[string]any); ok {
			r.Username = decode.ReadString(u, "username")
		}
	}
	return r
}

// Room is the channel the event belongs to, falling back to the conversation.
func (r Routing) Room() string {
	if r.ChannelID != "" {
		return r.ChannelID
	}
	return r.ConversationID
}

// MessageKey is the message identity used for cache keys.
func (r Routing) MessageKey() string {
	if r.ID != "" {
		return r.ID
	}
	return r.AltID
}
