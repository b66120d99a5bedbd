package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/openai"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func TestConnect_SendsSessionUpdate(t *testing.T) {
	done := make(chan struct{})
	srv := startServer(t, func(conn *websocket.Conn) {
		defer close(done)
		var msg map[string]any
		readJSON(t, conn, &msg)
		if msg["type"] != "session.update" {
			t.Errorf("expected session.update, got %v", msg["type"])
		}
		session, _ := msg["session"].(map[string]any)
		if session["voice"] != "alloy" {
			t.Errorf("expected voice alloy, got %v", session["voice"])
		}
	})

	p := openai.New("test-key", openai.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{Voice: "alloy", Instructions: "be helpful"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session.update")
	}
}

func TestSession_AgentAudioDeltaAndResponseDone(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // session.update

		writeJSON(t, conn, map[string]any{
			"type":  "response.audio.delta",
			"delta": "AAAA", // base64 of 3 zero bytes
		})
		writeJSON(t, conn, map[string]any{
			"type": "response.done",
			"response": map[string]any{
				"usage": map[string]any{},
			},
		})
		time.Sleep(50 * time.Millisecond)
	})

	p := openai.New("test-key", openai.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{Voice: "alloy"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	var gotAudio, gotDone bool
	timeout := time.After(2 * time.Second)
	for !gotAudio || !gotDone {
		select {
		case evt, ok := <-sess.Events():
			if !ok {
				t.Fatal("events channel closed before seeing expected events")
			}
			switch evt.Kind {
			case realtime.EventAgentAudioDelta:
				gotAudio = true
			case realtime.EventResponseDone:
				gotDone = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestSession_RequestCancelSendsResponseCancel(t *testing.T) {
	done := make(chan struct{})
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // session.update
		readJSON(t, conn, &msg) // response.cancel
		if msg["type"] != "response.cancel" {
			t.Errorf("expected response.cancel, got %v", msg["type"])
		}
		close(done)
	})

	p := openai.New("test-key", openai.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	if err := sess.RequestCancel(); err != nil {
		t.Fatalf("request cancel: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response.cancel")
	}
}

func TestCapabilities(t *testing.T) {
	p := openai.New("test-key")
	caps := p.Capabilities()
	if !caps.SupportsCancellation {
		t.Error("expected OpenAI to support cancellation")
	}
	if len(caps.Voices) == 0 {
		t.Error("expected a non-empty voice list")
	}
}
