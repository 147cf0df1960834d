package ai

import "context"

// Provider produces a single assistant reply for a prompt. The text path
// is single-shot; streaming belongs to the voice pipeline.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
