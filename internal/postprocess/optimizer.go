// Package postprocess sends merged subtitle text to a correction backend
// and reconciles the corrected text onto the original cues. Optimization
// is best-effort: any failure returns the cues unchanged.
package postprocess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"subforge/internal/llm"
	"subforge/internal/retry"
	"subforge/internal/subtitle"
	"subforge/pkg/log"
)

const systemPrompt = `You are a subtitle correction assistant. You receive a JSON object mapping string keys to subtitle lines.
For each line: fix typos and punctuation, remove filler words (um, uh, you know), and normalize spacing and capitalization.
Never translate, never reorder, never merge or split lines.
Return ONLY a JSON object with the same keys mapping to the corrected lines. Keys you omit are kept unchanged.`

// Optimizer rewrites cue text through an LLM while preserving timing,
// count and order verbatim.
type Optimizer struct {
	client *llm.Client
	logger *log.Logger
	retry  retry.Options
}

func NewOptimizer(client *llm.Client, logger *log.Logger) *Optimizer {
	return &Optimizer{
		client: client,
		logger: logger,
		retry: retry.Options{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   retry.DefaultBaseDelay,
			OnRetry: func(_ int, message string) {
				logger.Warn("Optimization retry: %s", message)
			},
		},
	}
}

// Optimize returns a corrected copy of cues. Only Text may differ from the
// input; times, count and order are preserved. On any failure the original
// cues are returned.
func (o *Optimizer) Optimize(ctx context.Context, cues []subtitle.Cue, customInstructions string) []subtitle.Cue {
	if len(cues) == 0 {
		return cues
	}

	prompt, err := buildPrompt(cues, customInstructions)
	if err != nil {
		o.logger.Warn("Skipping optimization: %v", err)
		return cues
	}

	response, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
		return o.client.SimpleChat(ctx, prompt, systemPrompt)
	}, isRetryableLLMError, o.retry)
	if err != nil {
		o.logger.Warn("Optimization abandoned after retries: %v", err)
		return cues
	}

	corrections, err := parseCorrections(response)
	if err != nil {
		o.logger.Warn("Optimization response unusable, keeping original text: %v", err)
		return cues
	}

	return splice(cues, corrections)
}

// buildPrompt maps a stable 0-based key to each cue's text. The cue's own
// index is not used so renumbering cannot desynchronize the mapping.
func buildPrompt(cues []subtitle.Cue, customInstructions string) (string, error) {
	payload := make(map[string]string, len(cues))
	for i, cue := range cues {
		payload[strconv.Itoa(i)] = cue.Text
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode subtitle payload: %w", err)
	}

	var b strings.Builder
	if customInstructions != "" {
		b.WriteString("Additional instructions: ")
		b.WriteString(customInstructions)
		b.WriteString("\n\n")
	}
	b.WriteString("Subtitle lines:\n")
	b.Write(encoded)
	return b.String(), nil
}

// parseCorrections extracts a key->text JSON object from the response,
// tolerating surrounding prose or a fenced code block.
func parseCorrections(response string) (map[string]string, error) {
	candidate := response
	if idx := strings.Index(candidate, "```"); idx >= 0 {
		candidate = candidate[idx+3:]
		candidate = strings.TrimPrefix(candidate, "json")
		if end := strings.Index(candidate, "```"); end >= 0 {
			candidate = candidate[:end]
		}
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in response")
	}

	var corrections map[string]string
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &corrections); err != nil {
		return nil, fmt.Errorf("decode corrections: %w", err)
	}
	if len(corrections) == 0 {
		return nil, errors.New("empty corrections object")
	}
	return corrections, nil
}

// splice applies corrections by key; missing keys and empty corrections
// keep the original text.
func splice(cues []subtitle.Cue, corrections map[string]string) []subtitle.Cue {
	out := make([]subtitle.Cue, len(cues))
	copy(out, cues)

	for i := range out {
		corrected, ok := corrections[strconv.Itoa(i)]
		if !ok {
			continue
		}
		corrected = strings.TrimSpace(corrected)
		if corrected == "" {
			continue
		}
		out[i].Text = corrected
	}
	return out
}

// isRetryableLLMError treats 429 and 5xx responses plus network-level
// transients as retryable.
func isRetryableLLMError(err error) bool {
	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}
	return retry.IsTransient(err)
}
