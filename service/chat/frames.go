package chat

import (
	"encoding/json"
	"strings"

	"PPRealtime/tools/decode"
	"PPRealtime/tools/errs"
)

// Frame is the JSON unit exchanged with clients in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client control events.
const (
	EventJoinChannel  = "join_channel"
	EventLeaveChannel = "leave_channel"
	EventPing         = "ping"
	EventPong         = "pong"
	EventError        = "error"
)

func EncodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.ErrMalformedEnvelope.WrapMsg(err, "encode frame", "event", event)
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

func ParseFrame(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errs.ErrMalformedEnvelope.WrapMsg(err, "parse frame")
	}
	if strings.TrimSpace(f.Event) == "" {
		return nil, errs.ErrMalformedEnvelope.WrapMsg(nil, "frame without event")
	}
	return &f, nil
}

// ChannelID accepts "c-1", {"channelId":"c-1"} or a numeric channelId as frame data.
func (f *Frame) ChannelID() string {
	if len(f.Data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(f.Data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var m map[string]any
	if err := json.Unmarshal(f.Data, &m); err != nil {
		return ""
	}
	obj, err := decode.Map[struct {
		ChannelID string `json:"channelId"`
	}](m)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(obj.ChannelID)
}
