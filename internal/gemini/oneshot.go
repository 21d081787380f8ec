// Package gemini wraps the one-shot generative calls that sit outside the
// live streaming channel: opening-line generation and standalone speech
// synthesis.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	apperr "github.com/fluentvoice/platform/internal/errors"
	"github.com/fluentvoice/platform/internal/resilience"
)

// PronunciationScenario selects the pronunciation-coach opening prompt
// instead of the role-play one.
const PronunciationScenario = "pronunciation"

const speechPromptPrefix = "Say this clearly: "

// modelCaller is the slice of the genai client the generator needs.
// *genai.Models satisfies it.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator issues one-shot requests against the generative backend.
type Generator struct {
	models    modelCaller
	ttsModel  string
	textModel string
	breaker   *resilience.Breaker
}

// New builds a generator backed by a real genai client.
func New(ctx context.Context, apiKey, ttsModel, textModel string) (*Generator, error) {
	if apiKey == "" {
		return nil, apperr.New(apperr.CodeConfigMissing, "api key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to build generative client")
	}
	return newGenerator(client.Models, ttsModel, textModel), nil
}

func newGenerator(models modelCaller, ttsModel, textModel string) *Generator {
	return &Generator{
		models:    models,
		ttsModel:  ttsModel,
		textModel: textModel,
		breaker:   resilience.NewBreaker(resilience.SynthesisConfig()),
	}
}

// SynthesizeSpeech renders text to raw PCM via the TTS model. Best effort:
// returns nil on any failure so callers can skip playback and move on.
func (g *Generator) SynthesizeSpeech(ctx context.Context, text, voice string) []byte {
	audio, err := resilience.ExecuteWithResult(g.breaker, func() ([]byte, error) {
		return g.synthesize(ctx, text, voice)
	})
	if err != nil {
		slog.Warn("speech synthesis unavailable", "error", err)
		return nil
	}
	return audio
}

func (g *Generator) synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := g.models.GenerateContent(ctx, g.ttsModel,
		genai.Text(speechPromptPrefix+text),
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeSynthesisUnavailable, "speech generation failed")
	}

	audio := inlineAudio(resp)
	if audio == nil {
		return nil, apperr.New(apperr.CodeSynthesisUnavailable, "response carried no audio payload")
	}
	return audio, nil
}

// GenerateOpening produces the spoken opening line for a practice scenario.
// Falls back to a fixed greeting when the backend is unreachable; never
// fails.
func (g *Generator) GenerateOpening(ctx context.Context, scenario string) string {
	prompt := openingPrompt(scenario)

	var text string
	err := resilience.Retry(ctx, resilience.GenerationRetryConfig(), func() error {
		resp, err := g.models.GenerateContent(ctx, g.textModel, genai.Text(prompt), nil)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeNetwork, "opening generation failed")
		}
		text = strings.TrimSpace(resp.Text())
		if text == "" {
			return apperr.New(apperr.CodeInternal, "empty opening response")
		}
		return nil
	})
	if err != nil {
		slog.Warn("falling back to canned opening line", "scenario", scenario, "error", err)
		return fallbackOpening(scenario)
	}
	return text
}

func openingPrompt(scenario string) string {
	if scenario == PronunciationScenario {
		return `You are an English pronunciation coach. Start a practice session. Greet the user and provide the very first short sentence or tongue twister for them to pronounce. Your response must be only the words you would speak. For example: "Hi there! Let's work on your pronunciation. Please say this for me: 'How now, brown cow?'" Be concise and friendly.`
	}
	return fmt.Sprintf(`You are an English tutor. Start a practice conversation about %q. Greet the user and ask the first direct question to begin the role-play. Your response must be only the words you would speak. Be concise and friendly.`, scenario)
}

func fallbackOpening(scenario string) string {
	if scenario == PronunciationScenario {
		return "Hello! Let's practice your pronunciation. Please say: 'She sells seashells by the seashore.'"
	}
	return fmt.Sprintf("Hello! Let's practice %q. Are you ready to start?", scenario)
}

// inlineAudio digs the first inline binary payload out of a response.
func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}
	return nil
}
