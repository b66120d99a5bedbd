package realtime_test

import (
	"strings"
	"testing"

	"github.com/voxbridge/realtime-bridge/pkg/provider/realtime"
)

func TestLanguagePreamble_OnlyAppliesToXAI(t *testing.T) {
	got := realtime.LanguagePreamble("openai", "tr", "Be a helpful agent.")
	if got != "Be a helpful agent." {
		t.Errorf("expected openai instructions unchanged, got %q", got)
	}
}

func TestLanguagePreamble_XAITurkish(t *testing.T) {
	got := realtime.LanguagePreamble("xai", "tr", "Be a helpful agent.")
	if !strings.Contains(got, "Türkçe") {
		t.Errorf("expected Turkish directive, got %q", got)
	}
	if !strings.HasSuffix(got, "Be a helpful agent.") {
		t.Errorf("expected original instructions preserved, got %q", got)
	}
}

func TestLanguagePreamble_NoLanguage(t *testing.T) {
	got := realtime.LanguagePreamble("xai", "", "Be a helpful agent.")
	if got != "Be a helpful agent." {
		t.Errorf("expected unchanged instructions when language is empty, got %q", got)
	}
}

func TestLanguagePreamble_EmptyInstructions(t *testing.T) {
	got := realtime.LanguagePreamble("xai", "tr", "")
	if strings.Contains(got, "\n\n") {
		t.Errorf("should not add separator when instructions are empty, got %q", got)
	}
}
