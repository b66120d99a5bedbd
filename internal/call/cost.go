package call

import (
	"math"
	"sync"
	"time"
)

// CostAccumulator tracks billable usage for one call. The accumulation
// policy is provider-typed per spec.md §4.7: OpenAI and Gemini accumulate
// token tuples reported on each ResponseDone; xAI bills call-seconds; and
// Ultravox bills deciminutes (6s units, rounded up).
//
// Safe for concurrent use — the provider-events task accumulates usage while
// the session driver may read Snapshot concurrently at call end.
type CostAccumulator struct {
	mu       sync.Mutex
	provider string

	// Token-based providers (OpenAI, Gemini).
	inputTextTokens   int64
	inputAudioTokens  int64
	outputTextTokens  int64
	outputAudioTokens int64
	cachedTokens      int64

	// xAI: wall-clock call duration.
	startedAt time.Time
	stoppedAt time.Time

	// Ultravox: explicit duration reported in billing events.
	ultravoxSeconds float64
}

// NewCostAccumulator creates a [CostAccumulator] for the named provider
// ("openai", "gemini", "xai", or "ultravox").
func NewCostAccumulator(provider string) *CostAccumulator {
	return &CostAccumulator{provider: provider, startedAt: time.Now()}
}

// TokenUsage is the 4-tuple (plus cached input) OpenAI and Gemini report on
// each ResponseDone event.
type TokenUsage struct {
	InputText   int64
	InputAudio  int64
	OutputText  int64
	OutputAudio int64
	CachedInput int64
}

// AddTokenUsage accumulates a token-based usage report. Applies to OpenAI
// and Gemini; no-op for call-seconds/deciminute providers.
func (c *CostAccumulator) AddTokenUsage(u TokenUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.provider == "xai" || c.provider == "ultravox" {
		return
	}
	c.inputTextTokens += u.InputText
	c.inputAudioTokens += u.InputAudio
	c.outputTextTokens += u.OutputText
	c.outputAudioTokens += u.OutputAudio
	c.cachedTokens += u.CachedInput
}

// MarkStopped records the call's end time for xAI's call-seconds billing.
// Idempotent — only the first call takes effect.
func (c *CostAccumulator) MarkStopped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stoppedAt.IsZero() {
		c.stoppedAt = time.Now()
	}
}

// AddUltravoxSeconds accumulates the duration Ultravox reports in billing
// events on its control channel.
func (c *CostAccumulator) AddUltravoxSeconds(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ultravoxSeconds += seconds
}

// Snapshot is the immutable, provider-typed usage total at the moment
// Snapshot is called. Only the fields relevant to [CostAccumulator.provider]
// are populated.
type Snapshot struct {
	Provider   string
	Tokens     TokenUsage
	CallSecs   int64 // xAI: ceil(seconds)
	Deciminute int64 // Ultravox: ceil(seconds / 6)
}

// Snapshot computes the current total, applying the provider's rounding
// rule. Calling Snapshot repeatedly with the same recorded events is
// idempotent (testable property 6): it is a pure function of accumulated
// state, never of wall-clock time except for the xAI case, which freezes
// once [CostAccumulator.MarkStopped] has been called.
func (c *CostAccumulator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Provider: c.provider,
		Tokens: TokenUsage{
			InputText:   c.inputTextTokens,
			InputAudio:  c.inputAudioTokens,
			OutputText:  c.outputTextTokens,
			OutputAudio: c.outputAudioTokens,
			CachedInput: c.cachedTokens,
		},
	}

	switch c.provider {
	case "xai":
		end := c.stoppedAt
		if end.IsZero() {
			end = time.Now()
		}
		secs := end.Sub(c.startedAt).Seconds()
		s.CallSecs = int64(math.Ceil(secs))
	case "ultravox":
		s.Deciminute = int64(math.Ceil(c.ultravoxSeconds / 6))
	}

	return s
}
