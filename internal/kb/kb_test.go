package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/orlyatnik/campbot/internal/anketa"
)

type fakeSettings struct {
	values  map[string]string
	loadErr error
	sets    []string
}

func (f *fakeSettings) GetSettings(context.Context) (map[string]string, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSettings) SetSetting(_ context.Context, key, value string) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	f.sets = append(f.sets, key)
	return nil
}

func TestCurrentDefaults(t *testing.T) {
	r := NewRuntime(&fakeSettings{})

	got := r.Current()
	if got.Price != 21000 {
		t.Errorf("default price = %d", got.Price)
	}
	if got.Deposit != 10000 {
		t.Errorf("default deposit = %d", got.Deposit)
	}
	if got.RegistrationClosed {
		t.Error("registration must be open by default")
	}
	if got.FieldPrompts[anketa.FieldFIO] == "" {
		t.Error("field prompts must have defaults")
	}
}

func TestCurrentAppliesOverrides(t *testing.T) {
	store := &fakeSettings{values: map[string]string{
		"PRICE":               "23 000",
		"DEPOSIT":             "not-a-number",
		"REGISTRATION_CLOSED": "да",
		"NEXT_SHIFT_TEXT":     "15 июня",
		"FIELD_PROMPT_city":   "Откуда ты?",
		"FIELD_PROMPT_bogus":  "ignored",
		"UNKNOWN_KEY":         "ignored",
		"PAYMENT_DETAILS":     "   ",
	}}
	r := NewRuntime(store)
	if err := r.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := r.Current()
	if got.Price != 23000 {
		t.Errorf("spaced numeric override not parsed, price = %d", got.Price)
	}
	if got.Deposit != 10000 {
		t.Errorf("unparsable numeric override must keep the default, deposit = %d", got.Deposit)
	}
	if !got.RegistrationClosed {
		t.Error("\"да\" must parse as true")
	}
	if got.NextShiftText != "15 июня" {
		t.Errorf("text override not applied: %q", got.NextShiftText)
	}
	if got.FieldPrompts[anketa.FieldCity] != "Откуда ты?" {
		t.Errorf("field prompt override not applied: %q", got.FieldPrompts[anketa.FieldCity])
	}
	if _, ok := got.FieldPrompts[anketa.Field("bogus")]; ok {
		t.Error("unknown field prompt must not be added")
	}
	if got.PaymentDetails != defaults().PaymentDetails {
		t.Error("blank override must keep the default")
	}
}

func TestLoadFailureKeepsDefaults(t *testing.T) {
	r := NewRuntime(&fakeSettings{loadErr: errors.New("db down")})

	if err := r.Load(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if got := r.Current(); got.Price != 21000 {
		t.Errorf("defaults must survive a failed load, price = %d", got.Price)
	}
}

func TestSetPersistsAndApplies(t *testing.T) {
	store := &fakeSettings{}
	r := NewRuntime(store)

	if err := r.Set(context.Background(), "PRICE", "25000"); err != nil {
		t.Fatal(err)
	}
	if len(store.sets) != 1 || store.sets[0] != "PRICE" {
		t.Error("override must be persisted to the store")
	}
	if got := r.Current(); got.Price != 25000 {
		t.Errorf("override must take effect immediately, price = %d", got.Price)
	}
}

func TestIsEditableKey(t *testing.T) {
	if !IsEditableKey("PRICE") {
		t.Error("PRICE must be editable")
	}
	if !IsEditableKey("FIELD_PROMPT_fio") {
		t.Error("FIELD_PROMPT_fio must be editable")
	}
	if IsEditableKey("TELEGRAM_TOKEN") {
		t.Error("arbitrary keys must not be editable")
	}
}

func TestCurrentCopiesPrompts(t *testing.T) {
	r := NewRuntime(&fakeSettings{})

	a := r.Current()
	a.FieldPrompts[anketa.FieldFIO] = "mutated"

	b := r.Current()
	if b.FieldPrompts[anketa.FieldFIO] == "mutated" {
		t.Error("Current must hand out an independent prompt map")
	}
}
