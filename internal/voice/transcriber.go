// Package voice turns Telegram voice notes into text via Whisper so the
// conversation layer can treat them like any typed message.
package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/orlyatnik/campbot/internal/config"
)

type Transcriber struct {
	client *resty.Client
}

func New(cfg *config.Config) *Transcriber {
	return &Transcriber{
		client: resty.New().
			SetBaseURL("https://api.openai.com/v1").
			SetAuthToken(cfg.OpenAIAPIKey).
			SetTimeout(60 * time.Second),
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends the downloaded voice file to Whisper and returns the
// recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetFileReader("file", "voice.ogg", audio).
		SetFormData(map[string]string{"model": "whisper-1"}).
		SetResult(&transcriptionResponse{}).
		Post("/audio/transcriptions")
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}
	return resp.Result().(*transcriptionResponse).Text, nil
}
