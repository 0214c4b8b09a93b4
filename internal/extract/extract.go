// Package extract pulls structured investment intent out of call transcripts.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/model"
	"github.com/sells-group/lead-engine/pkg/anthropic"
)

// Extractor guesses intent signals from free text. Implementations return an
// empty bag, never an error, when nothing can be extracted.
type Extractor interface {
	Extract(ctx context.Context, text string) model.IntentSignals
}

const systemPrompt = `You extract financial intent from sales-call transcripts for an Indian wealth-management desk.
Respond with a single JSON object and nothing else. Use only these keys, omitting any you cannot infer:
- investment_type (e.g. PMS, AIF, Mutual Fund, Equity)
- ticket_size (e.g. 50 Lakhs, 1 Crore)
- urgency (High, Medium, Low)
- investor_type (HNI, Retail, Institutional)
- risk_profile (Aggressive, Conservative, Balanced)`

const userPrompt = "Transcript: %s"

// LLMExtractor extracts signals with the Anthropic Messages API.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewLLM creates an extractor. A nil client yields an extractor that always
// returns no signals.
func NewLLM(client anthropic.Client, cfg config.AnthropicConfig) *LLMExtractor {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &LLMExtractor{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
	}
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, text string) model.IntentSignals {
	if e == nil || e.client == nil || strings.TrimSpace(text) == "" {
		return model.IntentSignals{}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	temp := 0.0
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      systemPrompt,
		CacheSystem: true,
		Messages:    []anthropic.Message{anthropic.UserMessage(fmt.Sprintf(userPrompt, text))},
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("extract: llm call failed", zap.Error(err))
		return model.IntentSignals{}
	}
	resp.Usage.Log(e.model, "extract")

	signals, err := ParseSignals(resp.Text())
	if err != nil {
		zap.L().Warn("extract: unparseable llm response", zap.Error(err))
		return model.IntentSignals{}
	}
	zap.L().Debug("extract: signals", zap.Any("signals", signals))
	return signals
}

// ParseSignals decodes the first JSON object in text into a signal bag.
// Unrecognized keys, empty values, and non-scalar values are dropped;
// numbers and booleans are stringified.
func ParseSignals(text string) (model.IntentSignals, error) {
	raw := cleanJSON(text)
	if raw == "" {
		return model.IntentSignals{}, eris.New("extract: no json object in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return model.IntentSignals{}, eris.Wrap(err, "extract: decode json")
	}

	out := model.IntentSignals{}
	for k, v := range obj {
		if !model.IsSignalKey(k) {
			continue
		}
		if s := scalarString(v); s != "" {
			out[k] = s
		}
	}
	return out, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// cleanJSON returns the first balanced JSON object in text, ignoring any
// markdown fences or preamble around it.
func cleanJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
