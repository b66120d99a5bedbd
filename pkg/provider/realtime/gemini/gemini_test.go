package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime/gemini"
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

func TestConnect_SendsSetupWithVoice(t *testing.T) {
	done := make(chan struct{})
	srv := startServer(t, func(conn *websocket.Conn) {
		defer close(done)
		var msg map[string]any
		readJSON(t, conn, &msg)
		setup, _ := msg["setup"].(map[string]any)
		if setup == nil {
			t.Fatal("expected setup field")
		}
		genCfg, _ := setup["generationConfig"].(map[string]any)
		speechCfg, _ := genCfg["speechConfig"].(map[string]any)
		voiceCfg, _ := speechCfg["voiceConfig"].(map[string]any)
		prebuilt, _ := voiceCfg["prebuiltVoiceConfig"].(map[string]any)
		if prebuilt["voiceName"] != "Kore" {
			t.Errorf("expected voiceName Kore, got %v", prebuilt["voiceName"])
		}
	})

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{Voice: "Kore", Instructions: "be helpful"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for setup")
	}
}

func TestSession_ModelTurnAudioAndTurnComplete(t *testing.T) {
	audioBytes := []byte{0, 0, 0}
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // setup

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm", "data": base64.StdEncoding.EncodeToString(audioBytes)}},
					},
				},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		time.Sleep(50 * time.Millisecond)
	})

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{Voice: "Kore"})
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

func TestSession_RequestCancelSendsActivityEnd(t *testing.T) {
	done := make(chan struct{})
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // setup
		readJSON(t, conn, &msg) // realtimeInput with activityEnd

		ri, _ := msg["realtimeInput"].(map[string]any)
		if ri == nil {
			t.Fatal("expected realtimeInput field")
		}
		if _, ok := ri["activityEnd"]; !ok {
			t.Errorf("expected activityEnd field, got %v", ri)
		}
		close(done)
	})

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))
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
		t.Fatal("timed out waiting for activityEnd")
	}
}

func TestSession_ToolCallRequested(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn) {
		var msg map[string]any
		readJSON(t, conn, &msg) // setup

		writeJSON(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []map[string]any{
					{"id": "call-1", "name": "end_call", "args": map[string]any{"reason": "done"}},
				},
			},
		})
		time.Sleep(50 * time.Millisecond)
	})

	p := gemini.New("test-key", gemini.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := p.Connect(ctx, realtime.SessionConfig{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sess.Close("test done")

	select {
	case evt := <-sess.Events():
		if evt.Kind != realtime.EventToolCallRequested {
			t.Fatalf("expected tool call event, got %v", evt.Kind)
		}
		if evt.ToolName != "end_call" || evt.ToolCallID != "call-1" {
			t.Errorf("unexpected tool call fields: %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tool call event")
	}
}

func TestCapabilities(t *testing.T) {
	p := gemini.New("test-key")
	caps := p.Capabilities()
	if !caps.SupportsCancellation {
		t.Error("expected gemini to support cancellation via activityEnd")
	}
	if len(caps.Voices) == 0 {
		t.Error("expected a non-empty voice list")
	}
}
