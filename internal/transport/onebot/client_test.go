package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kailas-cloud/saucebot/internal/domain/message"
)

type handlerFunc func(ctx context.Context, ev message.Event) (message.Action, bool)

func (f handlerFunc) Handle(ctx context.Context, ev message.Event) (message.Action, bool) {
	return f(ctx, ev)
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)
	authHeader := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		frames := []string{
			`{"post_type":"meta_event","meta_event_type":"lifecycle"}`,
			`{"post_type":"message","message_type":"group","message_id":101,"user_id":7,"group_id":555,"message":"[CQ:reply,id=100]ccc"}`,
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	client := New(Config{URL: wsURL(srv), AccessToken: "s3cret"}, zap.NewNop())
	h := handlerFunc(func(_ context.Context, ev message.Event) (message.Action, bool) {
		return message.ReplyTo(ev, "并没有找到出处"), true
	})

	err := client.Run(context.Background(), h)
	if !IsClosed(err) {
		t.Errorf("expected normal closure, got %v", err)
	}
	if client.Connected() {
		t.Error("client must report disconnected after Run returns")
	}
	if got := <-authHeader; got != "Bearer s3cret" {
		t.Errorf("Authorization = %q", got)
	}

	var req struct {
		Action string `json:"action"`
		Params struct {
			GroupID int64  `json:"group_id"`
			Message string `json:"message"`
		} `json:"params"`
	}
	select {
	case data := <-received:
		if err := json.Unmarshal(data, &req); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	default:
		t.Fatal("server did not receive a reply")
	}
	if req.Action != "send_group_msg" || req.Params.GroupID != 555 || req.Params.Message != "[CQ:reply,id=101]并没有找到出处" {
		t.Errorf("unexpected reply %+v", req)
	}
}

func TestClient_ContextCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := New(Config{URL: wsURL(srv)}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, handlerFunc(func(context.Context, message.Event) (message.Action, bool) {
			return message.Action{}, false
		}))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !client.Connected() {
		t.Fatal("client never connected")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := New(Config{URL: wsURL(srv)}, zap.NewNop()).Run(context.Background(),
		handlerFunc(func(context.Context, message.Event) (message.Action, bool) { return message.Action{}, false }))
	if err == nil || IsClosed(err) {
		t.Fatalf("expected dial error, got %v", err)
	}
}
