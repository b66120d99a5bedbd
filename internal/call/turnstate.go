package call

import (
	"fmt"
	"sync"
)

// TurnState is one node of the per-call conversational state machine.
type TurnState int

const (
	StateIdle TurnState = iota
	StateUserSpeaking
	StateAgentThinking
	StateAgentSpeaking
	StateBargingIn
	StateToolRunning
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUserSpeaking:
		return "user_speaking"
	case StateAgentThinking:
		return "agent_thinking"
	case StateAgentSpeaking:
		return "agent_speaking"
	case StateBargingIn:
		return "barging_in"
	case StateToolRunning:
		return "tool_running"
	default:
		return "unknown"
	}
}

// Trigger names the event that may cause a [TurnState] transition.
type Trigger int

const (
	TriggerUserSpeechStarted Trigger = iota
	TriggerUserSpeechStopped
	TriggerFirstAgentAudio
	TriggerToolCallRequested
	TriggerResponseDone
)

// transitions encodes the DAG from spec.md §3/§4.4: idle → user_speaking →
// agent_thinking → agent_speaking → idle, with barging_in reachable only
// from agent_speaking and tool_running reachable from agent_thinking or
// agent_speaking.
var transitions = map[TurnState]map[Trigger]TurnState{
	StateIdle: {
		TriggerUserSpeechStarted: StateUserSpeaking,
	},
	StateUserSpeaking: {
		TriggerUserSpeechStopped: StateAgentThinking,
	},
	StateAgentThinking: {
		TriggerFirstAgentAudio:   StateAgentSpeaking,
		TriggerToolCallRequested: StateToolRunning,
		TriggerResponseDone:      StateIdle,
	},
	StateAgentSpeaking: {
		TriggerUserSpeechStarted: StateBargingIn,
		TriggerToolCallRequested: StateToolRunning,
		TriggerResponseDone:      StateIdle,
	},
	StateBargingIn: {
		TriggerResponseDone: StateIdle,
	},
	StateToolRunning: {
		TriggerResponseDone: StateIdle,
	},
}

// ErrInvalidTransition is returned by [Machine.Fire] when a trigger has no
// transition defined from the current state.
type ErrInvalidTransition struct {
	From    TurnState
	Trigger Trigger
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("call: no transition for trigger %d from state %s", e.Trigger, e.From)
}

// Machine is the per-call turn-state machine. Safe for concurrent use: the
// session driver's provider-events task fires triggers on it and reads its
// state.
type Machine struct {
	mu           sync.Mutex
	state        TurnState
	greetingDone bool
	bargeInFlag  bool
}

// NewMachine creates a [Machine] starting in [StateIdle].
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies trigger to the machine. UserSpeechStarted while the agent is
// speaking and the greeting has not yet completed (the §4.4 "greeting
// protection" rule) is silently
// ignored rather than treated as an invalid transition, since caller noise
// during the opening utterance must not suppress it.
func (m *Machine) Fire(trigger Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if trigger == TriggerUserSpeechStarted && m.state == StateAgentSpeaking && !m.greetingDone {
		return nil
	}

	next, ok := transitions[m.state][trigger]
	if !ok {
		return &ErrInvalidTransition{From: m.state, Trigger: trigger}
	}

	if next == StateBargingIn {
		m.bargeInFlag = true
	}
	if trigger == TriggerResponseDone {
		m.greetingDone = true
		m.bargeInFlag = false
	}
	m.state = next
	return nil
}

// BargingIn reports whether a barge-in is in progress: set on entering
// barging_in, cleared on ResponseDone. The session driver reads it on
// UserSpeechStarted to decide whether to drain the pacer; the pacer keeps
// its own per-frame park flag.
func (m *Machine) BargingIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bargeInFlag
}

// GreetingDone reports whether the first ResponseDone has occurred yet.
func (m *Machine) GreetingDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.greetingDone
}

// Reset returns the machine to [StateIdle] with both the greeting-protection
// and barge-in flags cleared. Used after a provider reconnect (spec.md §7
// PROVIDER_TRANSPORT_ERROR), since the new session starts its own greeting
// and has no in-flight response to barge into.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.greetingDone = false
	m.bargeInFlag = false
}
