package enrich

import (
	"strings"
	"testing"
)

func TestNewRoutes_CoversEveryPair(t *testing.T) {
	routes, err := NewRoutes("https://example.test/webhook")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	seen := map[string]bool{}
	for _, p := range Personalities {
		for _, m := range Modalities {
			u := routes.URL(p, m)
			if u == "" {
				t.Fatalf("missing url for %s/%s", p, m)
			}
			if !strings.HasPrefix(u, "https://example.test/webhook/") {
				t.Fatalf("unexpected url for %s/%s: %q", p, m, u)
			}
			if seen[u] {
				t.Fatalf("duplicate url %q", u)
			}
			seen[u] = true
		}
	}
}

func TestNewRoutes_EnvOverride(t *testing.T) {
	t.Setenv("N8N_SAVANTIST_VOICE", "https://override.test/savantist-voice")
	routes, err := NewRoutes("https://example.test/webhook")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if got := routes.URL(PersonalitySavantist, ModalityVoice); got != "https://override.test/savantist-voice" {
		t.Fatalf("override not applied: %q", got)
	}
}

func TestNewRoutes_RejectsRelativeOverride(t *testing.T) {
	t.Setenv("N8N_SAVANTIST_TEXT", "/not-absolute")
	if _, err := NewRoutes("https://example.test/webhook"); err == nil {
		t.Fatalf("expected validation failure for relative url")
	}
}

func TestRoutes_UnknownPersonalityFallsBack(t *testing.T) {
	routes, err := NewRoutes("https://example.test/webhook")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	got := routes.URL(Personality("Nonexistent"), ModalityText)
	want := routes.URL(PersonalityAutistic, ModalityText)
	if got != want {
		t.Fatalf("fallback url = %q, want %q", got, want)
	}
}
