// Package transcribe turns recorded sales calls into text.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-engine/internal/config"
	"github.com/sells-group/lead-engine/internal/resilience"
)

// Transcriber converts audio bytes to text. filename is a hint for the
// audio container format.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// WhisperClient calls an OpenAI-compatible /audio/transcriptions endpoint
// (Groq, OpenAI, or a local whisper server).
type WhisperClient struct {
	url        string
	key        string
	model      string
	http       *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
}

// NewWhisper builds a client from cfg.
func NewWhisper(cfg config.TranscribeConfig) *WhisperClient {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-large-v3"
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &WhisperClient{
		url:        cfg.URL,
		key:        cfg.Key,
		model:      model,
		http:       &http.Client{Timeout: timeout},
		maxRetries: uint64(retries),
		backoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxElapsedTime = timeout
			return bo
		},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe implements Transcriber. 5xx and 429 responses are retried;
// other failures return immediately.
func (c *WhisperClient) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", eris.Wrap(err, "transcribe: create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return "", eris.Wrap(err, "transcribe: write audio")
	}
	if err := w.WriteField("model", c.model); err != nil {
		return "", eris.Wrap(err, "transcribe: write model")
	}
	if err := w.WriteField("response_format", "json"); err != nil {
		return "", eris.Wrap(err, "transcribe: write response_format")
	}
	if err := w.Close(); err != nil {
		return "", eris.Wrap(err, "transcribe: close multipart")
	}
	payload := body.Bytes()
	contentType := w.FormDataContentType()

	var text string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "transcribe: build request"))
		}
		req.Header.Set("Content-Type", contentType)
		if c.key != "" {
			req.Header.Set("Authorization", "Bearer "+c.key)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return eris.Wrap(err, "transcribe: request")
		}
		defer resp.Body.Close() //nolint:errcheck

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "transcribe: read response")
		}
		if err := resilience.CheckStatus(resp.StatusCode, raw); err != nil {
			if resilience.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		var out transcriptionResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(eris.Wrap(err, "transcribe: decode response"))
		}
		text = strings.TrimSpace(out.Text)
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		zap.L().Warn("transcribe: retrying", zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return "", err
	}
	return text, nil
}

// Safe wraps a Transcriber so that failures degrade to an empty transcript.
type Safe struct {
	Inner Transcriber
}

// Transcribe implements Transcriber and never returns an error.
func (s Safe) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if s.Inner == nil {
		return "", nil
	}
	text, err := s.Inner.Transcribe(ctx, filename, audio)
	if err != nil {
		zap.L().Warn("transcribe: failed, continuing with empty transcript",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", nil
	}
	return text, nil
}
