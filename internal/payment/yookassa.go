// Package payment integrates YooKassa: creating deposit payments with a
// redirect link, and the webhook payload the provider posts back when a
// payment succeeds. Optional: without credentials the bot falls back to
// manual transfer + receipt photo.
package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/orlyatnik/campbot/internal/config"
)

const EventPaymentSucceeded = "payment.succeeded"

type Payment struct {
	ID              string
	Status          string
	ConfirmationURL string
}

// WebhookEvent is the notification body YooKassa posts to our callback.
type WebhookEvent struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Metadata struct {
			UserID string `json:"user_id"`
		} `json:"metadata"`
	} `json:"object"`
}

type YooKassa struct {
	enabled bool
	client  *resty.Client
}

func New(cfg *config.Config) *YooKassa {
	enabled := cfg.YooKassaShopID != "" && cfg.YooKassaSecretKey != ""
	return &YooKassa{
		enabled: enabled,
		client: resty.New().
			SetBaseURL("https://api.yookassa.ru/v3").
			SetBasicAuth(cfg.YooKassaShopID, cfg.YooKassaSecretKey).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
	}
}

func (y *YooKassa) Enabled() bool { return y.enabled }

type createPaymentRequest struct {
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	Description string `json:"description"`
	Metadata    struct {
		UserID string `json:"user_id"`
	} `json:"metadata"`
	Confirmation struct {
		Type      string `json:"type"`
		ReturnURL string `json:"return_url"`
	} `json:"confirmation"`
	Capture bool `json:"capture"`
}

type createPaymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

// CreatePayment creates a deposit payment and returns the redirect link the
// user should follow. Amount is in whole rubles.
func (y *YooKassa) CreatePayment(ctx context.Context, amountRub int, userID int64, description string) (*Payment, error) {
	if !y.enabled {
		return nil, fmt.Errorf("yookassa is not configured")
	}

	var body createPaymentRequest
	body.Amount.Value = fmt.Sprintf("%d.00", amountRub)
	body.Amount.Currency = "RUB"
	body.Description = description
	body.Metadata.UserID = fmt.Sprint(userID)
	body.Confirmation.Type = "redirect"
	// The user comes back to Telegram after paying.
	body.Confirmation.ReturnURL = "https://t.me/"
	body.Capture = true

	resp, err := y.client.R().
		SetContext(ctx).
		SetHeader("Idempotence-Key", uuid.New().String()).
		SetBody(body).
		SetResult(&createPaymentResponse{}).
		Post("/payments")
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	result := resp.Result().(*createPaymentResponse)
	if result.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("no confirmation url in response for payment %s", result.ID)
	}
	return &Payment{
		ID:              result.ID,
		Status:          result.Status,
		ConfirmationURL: result.Confirmation.ConfirmationURL,
	}, nil
}
