package onebot

import (
	"encoding/json"
	"testing"

	"github.com/kailas-cloud/saucebot/internal/domain/message"
)

func TestDecodeFrame_Events(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want message.Event
	}{
		{
			name: "group string message",
			in: `{"post_type":"message","message_type":"group","message_id":101,"user_id":7,"group_id":555,
				"message":"[CQ:reply,id=100]查出处"}`,
			want: message.Event{Kind: message.Group, MessageID: 101, UserID: 7, GroupID: 555, Text: "[CQ:reply,id=100]查出处"},
		},
		{
			name: "private segments",
			in: `{"post_type":"message","message_type":"private","message_id":9,"user_id":42,
				"message":[{"type":"reply","data":{"id":"8"}},{"type":"text","data":{"text":"ccc [x]"}}]}`,
			want: message.Event{Kind: message.Private, MessageID: 9, UserID: 42, Text: "[CQ:reply,id=8]ccc &#91;x&#93;"},
		},
		{
			name: "image segment with escaped url",
			in: `{"post_type":"message","message_type":"group","message_id":100,"user_id":7,"group_id":555,
				"message":[{"type":"image","data":{"url":"https://img.example/a.jpg?x=1&y=2,3","file":"a.jpg"}}]}`,
			want: message.Event{Kind: message.Group, MessageID: 100, UserID: 7, GroupID: 555,
				Text: "[CQ:image,file=a.jpg,url=https://img.example/a.jpg?x=1&amp;y=2&#44;3]"},
		},
		{
			name: "numeric segment values kept exact",
			in: `{"post_type":"message","message_type":"group","message_id":1,"user_id":7,"group_id":5,
				"message":[{"type":"reply","data":{"id":1234567890123}}]}`,
			want: message.Event{Kind: message.Group, MessageID: 1, UserID: 7, GroupID: 5, Text: "[CQ:reply,id=1234567890123]"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := decodeFrame([]byte(tc.in))
			if err != nil {
				t.Fatalf("decodeFrame: %v", err)
			}
			if d.event == nil {
				t.Fatal("expected an event")
			}
			if *d.event != tc.want {
				t.Errorf("got %+v, want %+v", *d.event, tc.want)
			}
		})
	}
}

func TestDecodeFrame_NonEvents(t *testing.T) {
	d, err := decodeFrame([]byte(`{"post_type":"meta_event","meta_event_type":"heartbeat"}`))
	if err != nil || d.event != nil || d.response != nil {
		t.Errorf("meta event must be ignored: %+v, %v", d, err)
	}

	d, err = decodeFrame([]byte(`{"post_type":"notice","notice_type":"group_increase"}`))
	if err != nil || d.event != nil {
		t.Errorf("notice must be ignored: %+v, %v", d, err)
	}

	d, err = decodeFrame([]byte(`{"status":"failed","retcode":100,"wording":"group not found","echo":"abc"}`))
	if err != nil || d.response == nil {
		t.Fatalf("expected API response, got %+v, %v", d, err)
	}
	if !d.response.failed() || d.response.Echo != "abc" || d.response.Wording != "group not found" {
		t.Errorf("unexpected response %+v", d.response)
	}

	d, _ = decodeFrame([]byte(`{"status":"ok","retcode":0,"data":{"message_id":1},"echo":"x"}`))
	if d.response == nil || d.response.failed() {
		t.Errorf("expected successful response, got %+v", d.response)
	}

	if _, err := decodeFrame([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
	if _, err := decodeFrame([]byte(`{"post_type":"message","message_type":"group","message":{"a":1}}`)); err == nil {
		t.Error("expected error for malformed message field")
	}
}

func TestEncodeAction(t *testing.T) {
	data, echo, err := encodeAction(message.Action{
		Kind: message.GroupReply, GroupID: 555, ReplyTo: 101, Text: "[1] iqdb\nhttps://a.example/?x=1&y=2",
	})
	if err != nil {
		t.Fatalf("encodeAction: %v", err)
	}

	var got struct {
		Action string `json:"action"`
		Params struct {
			GroupID int64  `json:"group_id"`
			Message string `json:"message"`
		} `json:"params"`
		Echo string `json:"echo"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Action != "send_group_msg" || got.Params.GroupID != 555 {
		t.Errorf("unexpected request %+v", got)
	}
	if want := "[CQ:reply,id=101]&#91;1&#93; iqdb\nhttps://a.example/?x=1&amp;y=2"; got.Params.Message != want {
		t.Errorf("message = %q, want %q", got.Params.Message, want)
	}
	if got.Echo == "" || got.Echo != echo {
		t.Errorf("echo = %q, returned %q", got.Echo, echo)
	}
}

func TestEncodeAction_Private(t *testing.T) {
	data, _, err := encodeAction(message.Action{Kind: message.PrivateReply, UserID: 42, Text: "hi"})
	if err != nil {
		t.Fatalf("encodeAction: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	params := got["params"].(map[string]any)
	if got["action"] != "send_private_msg" || params["user_id"] != float64(42) || params["message"] != "hi" {
		t.Errorf("unexpected request %v", got)
	}

	if _, _, err := encodeAction(message.Action{Kind: "broadcast"}); err == nil {
		t.Error("expected error for unknown action kind")
	}
}
