package enrich

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Personality selects which AI persona a webhook route serves.
type Personality string

// Modality selects the channel a message arrived on.
type Modality string

const (
	PersonalityAutistic  Personality = "AUtistic AI"
	PersonalityLevel1ASD Personality = "Level 1 ASD"
	PersonalitySavantist Personality = "Savantist"

	ModalityText  Modality = "TEXT"
	ModalityVoice Modality = "VOICE"
	ModalityImage Modality = "IMAGE"
)

var Personalities = []Personality{PersonalityAutistic, PersonalityLevel1ASD, PersonalitySavantist}
var Modalities = []Modality{ModalityText, ModalityVoice, ModalityImage}

// Routes maps every (personality, modality) pair to its webhook URL.
// The table is built once at startup and validated exhaustively; requests
// never concatenate URLs.
type Routes struct {
	urls map[Personality]map[Modality]string
}

// env override names, e.g. N8N_AUTISTIC_AI_TEXT.
func envKey(p Personality, m Modality) string {
	slug := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(string(p)))
	slug = strings.ReplaceAll(slug, "LEVEL_1", "LEVEL1")
	return fmt.Sprintf("N8N_%s_%s", slug, m)
}

func defaultURL(baseURL string, p Personality, m Modality) string {
	personalitySlug := strings.ToLower(strings.ReplaceAll(string(p), " ", "-"))
	modalitySlug := strings.ToLower(string(m))
	return fmt.Sprintf("%s/%s-%s", strings.TrimRight(baseURL, "/"), personalitySlug, modalitySlug)
}

// NewRoutes builds and validates the full route table. Every pair must
// resolve to a parseable absolute URL or startup fails.
func NewRoutes(baseURL string) (*Routes, error) {
	urls := make(map[Personality]map[Modality]string, len(Personalities))
	for _, p := range Personalities {
		urls[p] = make(map[Modality]string, len(Modalities))
		for _, m := range Modalities {
			u := os.Getenv(envKey(p, m))
			if u == "" {
				u = defaultURL(baseURL, p, m)
			}
			parsed, err := url.Parse(u)
			if err != nil || !parsed.IsAbs() {
				return nil, fmt.Errorf("enrich: invalid webhook url for %s/%s: %q", p, m, u)
			}
			urls[p][m] = u
		}
	}
	return &Routes{urls: urls}, nil
}

// URL returns the webhook endpoint for a pair. Unknown personalities fall
// back to the default persona rather than failing the request.
func (r *Routes) URL(p Personality, m Modality) string {
	byModality, ok := r.urls[p]
	if !ok {
		byModality = r.urls[PersonalityAutistic]
	}
	if u, ok := byModality[m]; ok {
		return u
	}
	return byModality[ModalityText]
}
