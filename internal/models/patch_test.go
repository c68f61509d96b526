package models

import (
	"testing"
	"time"
)

func strptr(s string) *string { return &s }

func TestFieldPatchIsEmpty(t *testing.T) {
	if !(FieldPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if (FieldPatch{City: strptr("Казань")}).IsEmpty() {
		t.Error("patch with a field should not be empty")
	}
}

func TestFieldPatchUpdates(t *testing.T) {
	now := time.Now()
	patch := FieldPatch{
		FIO:       strptr("Иван Петров"),
		Phone:     strptr("+79001234567"),
		ConsentAt: &now,
	}

	upd := patch.Updates()
	if len(upd) != 3 {
		t.Fatalf("expected 3 updates, got %d: %v", len(upd), upd)
	}
	if upd["fio"] != "Иван Петров" {
		t.Errorf("fio = %v", upd["fio"])
	}
	if upd["phone"] != "+79001234567" {
		t.Errorf("phone = %v", upd["phone"])
	}
	if upd["consent_at"] != now {
		t.Errorf("consent_at = %v", upd["consent_at"])
	}
}

func TestFieldPatchApply(t *testing.T) {
	p := &Participant{UserID: 1, FIO: "old", City: "Москва"}
	now := time.Now()

	FieldPatch{FIO: strptr("new"), FinalSentAt: &now}.Apply(p)

	if p.FIO != "new" {
		t.Errorf("fio = %q", p.FIO)
	}
	if p.City != "Москва" {
		t.Errorf("untouched city changed: %q", p.City)
	}
	if p.FinalSentAt == nil || !p.FinalSentAt.Equal(now) {
		t.Errorf("final_sent_at = %v", p.FinalSentAt)
	}
}
