package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/orlyatnik/campbot/internal/kb"
	"github.com/orlyatnik/campbot/internal/models"
)

type emptySettings struct{}

func (emptySettings) GetSettings(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
func (emptySettings) SetSetting(context.Context, string, string) error { return nil }

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return &Client{
		model:   "gpt-4o-mini",
		kb:      kb.NewRuntime(emptySettings{}),
		manager: "manager",
		client:  resty.New().SetBaseURL(srv.URL),
	}
}

func completionBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+7 (900) 123-45-67": "+79001234567",
		"8 900 123 45 67":    "89001234567",
		"tel: 123":           "123",
		"":                   "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToFieldPatch(t *testing.T) {
	fio := "  Иванов Иван  "
	phone := "+7 (900) 123-45-67"
	blankShift := "   "
	p := FormPatch{FIO: &fio, Phone: &phone, Shift: &blankShift}

	out := p.ToFieldPatch("1 марта")
	if out.FIO == nil || *out.FIO != "Иванов Иван" {
		t.Errorf("fio not trimmed: %v", out.FIO)
	}
	if out.Phone == nil || *out.Phone != "+79001234567" {
		t.Errorf("phone not normalized: %v", out.Phone)
	}
	if out.Shift == nil || *out.Shift != "1 марта" {
		t.Errorf("blank shift must fall back to the default: %v", out.Shift)
	}
	if out.City != nil || out.DOB != nil || out.Comment != nil {
		t.Error("absent fields must stay nil")
	}
}

func TestSalesReply(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "сколько стоит?" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write(completionBody(t, "21000 ₽, задаток 10000 ₽."))
	})

	got := c.SalesReply(context.Background(), "сколько стоит?")
	if got != "21000 ₽, задаток 10000 ₽." {
		t.Errorf("unexpected reply: %q", got)
	}
}

func TestSalesReplyFallsBackOnServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if got := c.SalesReply(context.Background(), "привет"); got != salesFallback {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestFormModeReply(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("form mode must request a json_object response")
		}
		w.Write(completionBody(t, `{"intent":"UPDATE_FORM","reply_text":"Записал.","form_patch":{"city":"Казань"}}`))
	})

	p := &models.Participant{UserID: 1, Status: models.StatusFormFilling}
	reply := c.FormModeReply(context.Background(), "я из Казани", models.StatusFormFilling, p)

	if reply.Intent != IntentUpdateForm {
		t.Errorf("intent = %s", reply.Intent)
	}
	if reply.ReplyText != "Записал." {
		t.Errorf("reply = %q", reply.ReplyText)
	}
	if reply.FormPatch.City == nil || *reply.FormPatch.City != "Казань" {
		t.Errorf("city not extracted: %v", reply.FormPatch.City)
	}
}

func TestFormModeReplyFallsBackOnGarbage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody(t, "not json at all"))
	})

	p := &models.Participant{UserID: 1, Status: models.StatusFormFilling}
	reply := c.FormModeReply(context.Background(), "текст", models.StatusFormFilling, p)

	if reply.Intent != IntentOther {
		t.Errorf("expected OTHER intent, got %s", reply.Intent)
	}
	if reply.ReplyText != formFallback {
		t.Errorf("expected fallback text, got %q", reply.ReplyText)
	}
	if reply.FormPatch.City != nil {
		t.Error("fallback must carry an empty patch")
	}
}
