package call_test

import (
	"errors"
	"testing"

	"github.com/voxbridge/realtime-bridge/internal/call"
)

func TestMachine_HappyPath(t *testing.T) {
	m := call.NewMachine()
	steps := []struct {
		trigger call.Trigger
		want    call.TurnState
	}{
		{call.TriggerUserSpeechStarted, call.StateUserSpeaking},
		{call.TriggerUserSpeechStopped, call.StateAgentThinking},
		{call.TriggerFirstAgentAudio, call.StateAgentSpeaking},
		{call.TriggerResponseDone, call.StateIdle},
	}
	for _, s := range steps {
		if err := m.Fire(s.trigger); err != nil {
			t.Fatalf("fire %v: %v", s.trigger, err)
		}
		if got := m.State(); got != s.want {
			t.Fatalf("after trigger %v: got %s, want %s", s.trigger, got, s.want)
		}
	}
}

func TestMachine_BargeInOnlyFromAgentSpeaking(t *testing.T) {
	m := call.NewMachine()
	must(t, m, call.TriggerUserSpeechStarted)
	must(t, m, call.TriggerUserSpeechStopped)
	must(t, m, call.TriggerFirstAgentAudio)
	// First ResponseDone must have happened to disable greeting protection
	// before barge-in can be observed; simulate a completed greeting first.
	must(t, m, call.TriggerResponseDone)
	must(t, m, call.TriggerUserSpeechStarted)
	must(t, m, call.TriggerUserSpeechStopped)
	must(t, m, call.TriggerFirstAgentAudio)

	if m.BargingIn() {
		t.Fatal("barge-in flag should not be set before UserSpeechStarted while agent is speaking")
	}
	if err := m.Fire(call.TriggerUserSpeechStarted); err != nil {
		t.Fatalf("barge-in transition: %v", err)
	}
	if m.State() != call.StateBargingIn {
		t.Fatalf("expected barging_in, got %s", m.State())
	}
	if !m.BargingIn() {
		t.Fatal("expected barge-in flag set")
	}

	if err := m.Fire(call.TriggerResponseDone); err != nil {
		t.Fatalf("resolving barge-in: %v", err)
	}
	if m.BargingIn() {
		t.Fatal("expected barge-in flag cleared after ResponseDone")
	}
}

func TestMachine_GreetingProtection(t *testing.T) {
	m := call.NewMachine()
	must(t, m, call.TriggerUserSpeechStarted)
	must(t, m, call.TriggerUserSpeechStopped)
	must(t, m, call.TriggerFirstAgentAudio) // agent_speaking, greeting not yet done

	if err := m.Fire(call.TriggerUserSpeechStarted); err != nil {
		t.Fatalf("greeting-protected trigger should be silently ignored, got error: %v", err)
	}
	if m.State() != call.StateAgentSpeaking {
		t.Fatalf("expected state to remain agent_speaking during greeting, got %s", m.State())
	}
	if m.BargingIn() {
		t.Fatal("barge-in must not trigger before the greeting's first ResponseDone")
	}
}

func TestMachine_ToolRunningFromThinkingOrSpeaking(t *testing.T) {
	m := call.NewMachine()
	must(t, m, call.TriggerUserSpeechStarted)
	must(t, m, call.TriggerUserSpeechStopped)
	if err := m.Fire(call.TriggerToolCallRequested); err != nil {
		t.Fatalf("tool_running from agent_thinking: %v", err)
	}
	if m.State() != call.StateToolRunning {
		t.Fatalf("expected tool_running, got %s", m.State())
	}
	must(t, m, call.TriggerResponseDone)
	if m.State() != call.StateIdle {
		t.Fatalf("expected idle after tool_running resolves, got %s", m.State())
	}
}

func TestMachine_InvalidTransitionRejected(t *testing.T) {
	m := call.NewMachine()
	err := m.Fire(call.TriggerResponseDone)
	var invalid *call.ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func must(t *testing.T, m *call.Machine, trig call.Trigger) {
	t.Helper()
	if err := m.Fire(trig); err != nil {
		t.Fatalf("fire %v: %v", trig, err)
	}
}
