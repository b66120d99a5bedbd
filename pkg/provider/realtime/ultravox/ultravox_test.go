package ultravox_test

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
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/ultravox"
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

func TestSendAudio_IsNoOp(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // session.config

		// No further reads expected: SendAudio below must not write anything.
		time.Sleep(100 * time.Millisecond)
	})

	p := ultravox.New("test-key", ultravox.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{Voice: "Mark"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	if err := sess.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Errorf("expected SendAudio to be a no-op, got error: %v", err)
	}
}

func TestSession_BillingEventFeedsCostReports(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // session.config

		writeJSON(t, conn, map[string]any{
			"type":    "call.ended",
			"reason":  "completed",
			"billing": map[string]any{"durationSeconds": 37},
		})
		time.Sleep(50 * time.Millisecond)
	})

	p := ultravox.New("test-key", ultravox.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rawSess, err := p.Connect(ctx, realtime.SessionConfig{Voice: "Mark"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer rawSess.Close("test done")

	type costReporter interface {
		CostReports() <-chan int64
	}
	reporter, ok := rawSess.(costReporter)
	if !ok {
		t.Fatal("expected session to expose CostReports")
	}

	select {
	case secs := <-reporter.CostReports():
		if secs != 37 {
			t.Errorf("expected 37 seconds reported, got %d", secs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cost report")
	}
}

func TestSession_RequestCancelUnsupported(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg)
		time.Sleep(50 * time.Millisecond)
	})

	p := ultravox.New("test-key", ultravox.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	if err := sess.RequestCancel(); err != realtime.ErrCancelUnsupported {
		t.Errorf("expected ErrCancelUnsupported, got %v", err)
	}
}

func TestCapabilities(t *testing.T) {
	p := ultravox.New("test-key")
	caps := p.Capabilities()
	if caps.SupportsCancellation {
		t.Error("expected ultravox to not support in-band cancellation")
	}
}
