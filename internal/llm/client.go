// Package llm is the conversational reply generator. Two modes: free-text
// sales answers, and form mode which additionally extracts structured anketa
// fields from whatever the user wrote. The bot treats both as opaque
// functions with fallback strings, so an LLM outage degrades the
// conversation but never breaks state handling.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/orlyatnik/campbot/internal/config"
	"github.com/orlyatnik/campbot/internal/kb"
	"github.com/orlyatnik/campbot/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	salesFallback = "Сейчас не могу ответить. Напиши, пожалуйста, менеджеру — она подскажет."
	formFallback  = "Сейчас не могу обработать. Попробуй ещё раз или напиши менеджеру."
)

type Intent string

const (
	IntentInfo       Intent = "INFO"
	IntentBook       Intent = "BOOK"
	IntentUpdateForm Intent = "UPDATE_FORM"
	IntentPayment    Intent = "PAYMENT"
	IntentOther      Intent = "OTHER"
)

// FormPatch is the raw extraction from the model: only fields the user
// explicitly mentioned are present.
type FormPatch struct {
	FIO        *string `json:"fio,omitempty"`
	City       *string `json:"city,omitempty"`
	DOB        *string `json:"dob,omitempty"`
	Companions *string `json:"companions,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Comment    *string `json:"comment,omitempty"`
	Shift      *string `json:"shift,omitempty"`
}

var phoneJunkRe = regexp.MustCompile(`[^\d+]`)

// NormalizePhone strips everything but digits and the leading plus.
func NormalizePhone(s string) string {
	return phoneJunkRe.ReplaceAllString(s, "")
}

// ToFieldPatch sanitizes the extraction into a store patch: values trimmed,
// phone normalized, blank shift replaced with the default.
func (p FormPatch) ToFieldPatch(defaultShift string) models.FieldPatch {
	var out models.FieldPatch
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	out.FIO = trim(p.FIO)
	out.City = trim(p.City)
	out.DOB = trim(p.DOB)
	out.Companions = trim(p.Companions)
	out.Comment = trim(p.Comment)
	if p.Phone != nil {
		normalized := NormalizePhone(*p.Phone)
		out.Phone = &normalized
	}
	if p.Shift != nil {
		shift := strings.TrimSpace(*p.Shift)
		if shift == "" {
			shift = defaultShift
		}
		out.Shift = &shift
	}
	return out
}

// FormReply is the structured form-mode output.
type FormReply struct {
	Intent            Intent    `json:"intent"`
	ReplyText         string    `json:"reply_text"`
	FormPatch         FormPatch `json:"form_patch"`
	NeedsConfirmation bool      `json:"needs_confirmation"`
}

type Client struct {
	model   string
	kb      *kb.Runtime
	manager string

	client *resty.Client
}

func New(cfg *config.Config, runtime *kb.Runtime) *Client {
	return &Client{
		model:   cfg.OpenAIModel,
		kb:      runtime,
		manager: cfg.ManagerUsername,
		client: resty.New().
			SetBaseURL("https://api.openai.com/v1").
			SetAuthToken(cfg.OpenAIAPIKey).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&chatResponse{}).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d %s", resp.StatusCode(), string(resp.Body()))
	}

	out := resp.Result().(*chatResponse)
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) knowledgeBlock() string {
	current := c.kb.Current()
	reg := "Регистрация открыта."
	if current.RegistrationClosed {
		reg = "Регистрация закрыта. Всегда возвращай пользователя к этой актуальной информации."
	}
	return strings.Join([]string{
		reg,
		fmt.Sprintf("Локация: %s", current.Location),
		fmt.Sprintf("Даты: %s", current.Dates),
		fmt.Sprintf("Что входит: %s", current.WhatIncluded),
		fmt.Sprintf("Цена: %d ₽. Задаток: %d ₽.", current.Price, current.Deposit),
		fmt.Sprintf("Оплата: %s", current.PaymentDetails),
		fmt.Sprintf("Для сложных вопросов: %s", current.ManagerForComplex),
		fmt.Sprintf("Медиа/канал: %s", current.MediaChannel),
		fmt.Sprintf("После оплаты: %s", current.AfterPaymentText),
		fmt.Sprintf(
			"Возражения: «дорого» — %s; «боюсь один/одна» — %s; «не пью» — %s; «нет компании» — %s.",
			current.ObjectionPrice, current.ObjectionSolo, current.ObjectionNoAlcohol, current.ObjectionNoCompany,
		),
	}, "\n")
}

// SalesReply answers free-form questions. Never returns an error: on any
// failure the user gets a redirect to the manager instead.
func (c *Client) SalesReply(ctx context.Context, userMessage string) string {
	system := fmt.Sprintf(
		`Ты — живой организатор лагеря «Орлятник 21+». Тон: лёгкий юмор, уважительно, конкретика (даты, цены, что входит). Не выдумывай факты. Если не уверен — направь к менеджеру @%s.

База знаний (строго придерживайся):
%s

Отвечай кратко и по делу. Подводи к действию «Хочу забронировать» где уместно.`,
		c.manager, c.knowledgeBlock(),
	)

	text, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: userMessage},
		},
		Temperature: 0.7,
		MaxTokens:   600,
	})
	if err != nil {
		logrus.Errorf("llm sales reply: %v", err)
		return salesFallback
	}
	if text == "" {
		return salesFallback
	}
	return text
}

func anketaForPrompt(p *models.Participant) string {
	return strings.Join([]string{
		fmt.Sprintf("fio: %s", p.FIO),
		fmt.Sprintf("city: %s", p.City),
		fmt.Sprintf("dob: %s", p.DOB),
		fmt.Sprintf("companions: %s", p.Companions),
		fmt.Sprintf("phone: %s", p.Phone),
		fmt.Sprintf("comment: %s", p.Comment),
		fmt.Sprintf("shift: %s", p.Shift),
	}, ", ")
}

const formJSONInstruction = `Ответь ТОЛЬКО одним JSON-объектом без markdown и комментариев. Формат:
{"intent":"INFO|BOOK|UPDATE_FORM|PAYMENT|OTHER","reply_text":"...","form_patch":{...},"needs_confirmation":true|false}
form_patch — только поля, извлечённые из сообщения (fio, city, dob, companions, phone, comment, shift).`

// FormModeReply runs the structured extraction used while the anketa is
// being filled. Failures come back as an OTHER intent with a fallback text
// and an empty patch.
func (c *Client) FormModeReply(ctx context.Context, userMessage string, status models.Status, p *models.Participant) FormReply {
	system := fmt.Sprintf(
		`Ты помогаешь заполнить анкету участника лагеря «Орлятник 21+». Тон: живой, дружелюбный, конкретика.

Поля анкеты: fio, city, dob, companions, phone, comment, shift. Извлекай из сообщения только то, что пользователь явно указал. Не придумывай значения.

- intent: INFO | BOOK | UPDATE_FORM | PAYMENT | OTHER
- reply_text: что сказать пользователю (коротко)
- form_patch: объект только с теми полями, которые можно извлечь из сообщения
- needs_confirmation: true если пользователь подтвердил анкету целиком

Текущая анкета: %s
Текущий статус: %s

%s`,
		anketaForPrompt(p), status, formJSONInstruction,
	)

	fallback := FormReply{Intent: IntentOther, ReplyText: formFallback}

	raw, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: userMessage},
		},
		Temperature:    0.3,
		MaxTokens:      500,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		logrus.Errorf("llm form reply: %v", err)
		return fallback
	}

	var reply FormReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		logrus.Errorf("llm form reply: unmarshalling %q: %v", raw, err)
		return fallback
	}
	if reply.ReplyText == "" {
		reply.ReplyText = "Принято. Что-то ещё?"
	}
	if reply.Intent == "" {
		reply.Intent = IntentOther
	}
	return reply
}
