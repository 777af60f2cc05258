// Package onebot speaks the OneBot v11 forward WebSocket protocol.
package onebot

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/saucebot/internal/domain/message"
)

// frame is the union of everything the bridge pushes over the socket.
type frame struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	MessageID   int64           `json:"message_id"`
	UserID      int64           `json:"user_id"`
	GroupID     int64           `json:"group_id"`
	Message     json.RawMessage `json:"message"`

	// API responses
	Status  string          `json:"status"`
	RetCode *int            `json:"retcode"`
	Wording string          `json:"wording"`
	Msg     string          `json:"msg"`
	Echo    json.RawMessage `json:"echo"`
}

// apiResponse is the bridge's answer to one of our actions.
type apiResponse struct {
	Status  string
	RetCode int
	Echo    string
	Wording string
}

func (r apiResponse) failed() bool { return r.Status == "failed" || r.RetCode != 0 }

// decoded is one decoded frame: an event, an API response, or neither.
type decoded struct {
	event    *message.Event
	response *apiResponse
}

func decodeFrame(data []byte) (decoded, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return decoded{}, fmt.Errorf("decode frame: %w", err)
	}

	if f.PostType == "" && f.RetCode != nil {
		resp := &apiResponse{Status: f.Status, RetCode: *f.RetCode, Wording: f.Wording}
		if resp.Wording == "" {
			resp.Wording = f.Msg
		}
		if len(f.Echo) > 0 {
			var echo string
			if err := json.Unmarshal(f.Echo, &echo); err != nil {
				echo = string(f.Echo)
			}
			resp.Echo = echo
		}
		return decoded{response: resp}, nil
	}

	if f.PostType != "message" {
		return decoded{}, nil
	}

	var kind message.Kind
	switch f.MessageType {
	case "group":
		kind = message.Group
	case "private":
		kind = message.Private
	default:
		return decoded{}, nil
	}

	text, err := renderMessage(f.Message)
	if err != nil {
		return decoded{}, err
	}
	ev := &message.Event{
		Kind:      kind,
		MessageID: f.MessageID,
		UserID:    f.UserID,
		GroupID:   f.GroupID,
		Text:      text,
	}
	if kind == message.Private {
		ev.GroupID = 0
	}
	return decoded{event: ev}, nil
}

type segment struct {
	Type string                     `json:"type"`
	Data map[string]json.RawMessage `json:"data"`
}

// renderMessage returns the CQ-code string form of a message that arrives
// either as a string or as an array of segments.
func renderMessage(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode message string: %w", err)
		}
		return s, nil
	}

	var segs []segment
	if err := json.Unmarshal(raw, &segs); err != nil {
		return "", fmt.Errorf("decode message segments: %w", err)
	}
	var sb strings.Builder
	for _, seg := range segs {
		if seg.Type == "text" {
			sb.WriteString(escapeText(rawString(seg.Data["text"])))
			continue
		}
		sb.WriteString("[CQ:")
		sb.WriteString(seg.Type)
		keys := make([]string, 0, len(seg.Data))
		for k := range seg.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(",")
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(escapeParam(rawString(seg.Data[k])))
		}
		sb.WriteString("]")
	}
	return sb.String(), nil
}

// rawString returns a JSON string's value, or the literal text of any other
// JSON value (numbers stay exact).
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

var (
	textEscaper  = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;")
	paramEscaper = strings.NewReplacer("&", "&amp;", "[", "&#91;", "]", "&#93;", ",", "&#44;")
)

func escapeText(s string) string  { return textEscaper.Replace(s) }
func escapeParam(s string) string { return paramEscaper.Replace(s) }

type request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type groupParams struct {
	GroupID int64  `json:"group_id"`
	Message string `json:"message"`
}

type privateParams struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

// encodeAction builds the send request for act. The reply text is escaped so
// brackets in it are never read as CQ codes.
func encodeAction(act message.Action) ([]byte, string, error) {
	text := escapeText(act.Text)
	if act.ReplyTo != 0 {
		text = "[CQ:reply,id=" + strconv.FormatInt(act.ReplyTo, 10) + "]" + text
	}

	req := request{Echo: uuid.NewString()}
	switch act.Kind {
	case message.GroupReply:
		req.Action = "send_group_msg"
		req.Params = groupParams{GroupID: act.GroupID, Message: text}
	case message.PrivateReply:
		req.Action = "send_private_msg"
		req.Params = privateParams{UserID: act.UserID, Message: text}
	default:
		return nil, "", fmt.Errorf("unsupported action kind %q", act.Kind)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("encode action: %w", err)
	}
	return data, req.Echo, nil
}
