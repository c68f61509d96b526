// Package kb is the sales knowledge base: camp facts, prices, payment
// details and per-field prompts. Defaults live in code; admins override
// individual keys at runtime through the settings table, no redeploy needed.
package kb

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/orlyatnik/campbot/internal/anketa"
)

type KB struct {
	RegistrationClosed bool
	NextShiftText      string
	Location           string
	Dates              string
	WhatIncluded       string
	WhatToTake         string
	Price              int
	Deposit            int
	PaymentDetails     string
	ManagerForComplex  string
	MediaChannel       string
	AfterPaymentText   string
	DefaultShift       string

	ObjectionPrice     string
	ObjectionSolo      string
	ObjectionNoAlcohol string
	ObjectionNoCompany string

	FieldPrompts map[anketa.Field]string
}

var defaultFieldPrompts = map[anketa.Field]string{
	anketa.FieldFIO:        "Напиши, пожалуйста, ФИО (как в паспорте).",
	anketa.FieldCity:       "Из какого ты города?",
	anketa.FieldDOB:        "Дата рождения? (можно в любом формате)",
	anketa.FieldCompanions: "С кем едешь? (один/одна, вдвоём, думаешь — напиши как есть)",
	anketa.FieldPhone:      "Номер телефона для связи?",
	anketa.FieldShift:      "Какая смена? (если не знаешь — напиши «по умолчанию»)",
}

func defaults() KB {
	prompts := make(map[anketa.Field]string, len(defaultFieldPrompts))
	for f, p := range defaultFieldPrompts {
		prompts[f] = p
	}
	return KB{
		RegistrationClosed: false,
		NextShiftText:      "1 марта",
		Location:           "База в Чувашии, ~1 час от Чебоксар. Есть трансфер из Чебоксар до базы и парковка. Заезд 16–17:00, выезд 15:00. Точный адрес даём только участникам в чате.",
		Dates:              "Заезд 16–17:00, выезд 15:00.",
		WhatIncluded:       "Проживание в уютных корпусах с отоплением, полное питание, баня, вечеринки и рейвы с диджеями, квесты/игры/конкурсы/speed dating, внутренняя валюта «орлики», фото и видео со смены.",
		WhatToTake:         "Удобная одежда (днём/вечером), купальник/шорты, спортивная обувь + сменка, документы, зарядка для телефона, средства гигиены, настроение.",
		Price:              21000,
		Deposit:            10000,
		PaymentDetails:     "Сбер: 89050293388 — Кристина Владимировна. Никаких комментариев при переводе указывать не нужно.",
		ManagerForComplex:  "Для сложных или нестандартных вопросов — пиши Кристине @krisis_pr.",
		MediaChannel:       "https://t.me/orlyatnik",
		AfterPaymentText:   "После оплаты пришли чек (фото или документ) сюда в бота — это обязательно для подтверждения. Когда менеджер подтвердит — пришлём ссылку на чат.",
		DefaultShift:       "1 марта",
		ObjectionPrice:     "Это 7000 ₽ в день с проживанием, питанием и всей движухой. Дешевле, чем отель без атмосферы 😎",
		ObjectionSolo:      "Больше половины приезжают соло. К утру субботы у тебя уже будет своя компания.",
		ObjectionNoAlcohol: "Есть спорт, мафия, костры, разговоры по душам. Не обязательно пить, чтобы кайфануть.",
		ObjectionNoCompany: "Компания сама найдётся, у нас вайб такой — никто не остаётся в стороне.",
		FieldPrompts:       prompts,
	}
}

const fieldPromptPrefix = "FIELD_PROMPT_"

var (
	numKeys  = map[string]bool{"PRICE": true, "DEPOSIT": true}
	boolKeys = map[string]bool{"REGISTRATION_CLOSED": true}

	trueRe   = regexp.MustCompile(`(?i)^(1|true|да|yes)$`)
	spacesRe = regexp.MustCompile(`\s`)
)

// EditableKey is one knowledge base key admins may change from the bot menu.
type EditableKey struct {
	Key   string
	Label string
}

var EditableKeys = []EditableKey{
	{"NEXT_SHIFT_TEXT", "Ближайшая смена (даты)"},
	{"DEFAULT_SHIFT", "Смена по умолчанию"},
	{"PRICE", "Цена (₽)"},
	{"DEPOSIT", "Задаток (₽)"},
	{"REGISTRATION_CLOSED", "Регистрация закрыта (1/0)"},
	{"PAYMENT_DETAILS", "Реквизиты"},
	{"LOCATION", "Локация"},
	{"WHAT_INCLUDED", "Что входит"},
	{"WHAT_TO_TAKE", "Что взять с собой"},
	{"OBJECTION_PRICE", "Возражение: дорого"},
	{"OBJECTION_SOLO", "Возражение: один"},
	{"OBJECTION_NO_ALCOHOL", "Возражение: не пью"},
	{"OBJECTION_NO_COMPANY", "Возражение: нет компании"},
	{"MEDIA_CHANNEL", "Ссылка на фото/видео"},
	{"AFTER_PAYMENT_TEXT", "Инструкция после оплаты"},
	{"FIELD_PROMPT_fio", "Вопрос: ФИО"},
	{"FIELD_PROMPT_city", "Вопрос: город"},
	{"FIELD_PROMPT_dob", "Вопрос: дата рождения"},
	{"FIELD_PROMPT_companions", "Вопрос: с кем едешь"},
	{"FIELD_PROMPT_phone", "Вопрос: телефон"},
	{"FIELD_PROMPT_shift", "Вопрос: смена"},
}

func IsEditableKey(key string) bool {
	for _, e := range EditableKeys {
		if e.Key == key {
			return true
		}
	}
	return false
}

type settingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Runtime holds the merged view. Reads are frequent (every LLM prompt),
// writes are rare admin edits.
type Runtime struct {
	store settingsStore

	mu        sync.RWMutex
	overrides map[string]string
}

func NewRuntime(store settingsStore) *Runtime {
	return &Runtime{
		store:     store,
		overrides: make(map[string]string),
	}
}

// Load refreshes overrides from the settings table. Call at startup; a
// failure leaves the code defaults in effect.
func (r *Runtime) Load(ctx context.Context) error {
	overrides, err := r.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.overrides = overrides
	r.mu.Unlock()
	return nil
}

// Set persists one override and applies it immediately.
func (r *Runtime) Set(ctx context.Context, key, value string) error {
	if err := r.store.SetSetting(ctx, key, value); err != nil {
		return err
	}
	r.mu.Lock()
	r.overrides[key] = value
	r.mu.Unlock()
	return nil
}

// Current returns defaults merged with overrides.
func (r *Runtime) Current() KB {
	out := defaults()

	r.mu.RLock()
	defer r.mu.RUnlock()

	for key, raw := range r.overrides {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(key, fieldPromptPrefix) {
			field := anketa.Field(strings.TrimPrefix(key, fieldPromptPrefix))
			if _, ok := out.FieldPrompts[field]; ok {
				out.FieldPrompts[field] = raw
			}
			continue
		}
		applyKey(&out, key, raw)
	}
	return out
}

func applyKey(out *KB, key, raw string) {
	if numKeys[key] {
		n, err := strconv.Atoi(spacesRe.ReplaceAllString(raw, ""))
		if err != nil {
			return
		}
		switch key {
		case "PRICE":
			out.Price = n
		case "DEPOSIT":
			out.Deposit = n
		}
		return
	}
	if boolKeys[key] {
		if key == "REGISTRATION_CLOSED" {
			out.RegistrationClosed = trueRe.MatchString(raw)
		}
		return
	}

	switch key {
	case "NEXT_SHIFT_TEXT":
		out.NextShiftText = raw
	case "LOCATION":
		out.Location = raw
	case "DATES":
		out.Dates = raw
	case "WHAT_INCLUDED":
		out.WhatIncluded = raw
	case "WHAT_TO_TAKE":
		out.WhatToTake = raw
	case "PAYMENT_DETAILS":
		out.PaymentDetails = raw
	case "MANAGER_FOR_COMPLEX":
		out.ManagerForComplex = raw
	case "MEDIA_CHANNEL":
		out.MediaChannel = raw
	case "AFTER_PAYMENT_TEXT":
		out.AfterPaymentText = raw
	case "DEFAULT_SHIFT":
		out.DefaultShift = raw
	case "OBJECTION_PRICE":
		out.ObjectionPrice = raw
	case "OBJECTION_SOLO":
		out.ObjectionSolo = raw
	case "OBJECTION_NO_ALCOHOL":
		out.ObjectionNoAlcohol = raw
	case "OBJECTION_NO_COMPANY":
		out.ObjectionNoCompany = raw
	}
}
