package models

import "time"

// FieldPatch is a partial participant update: nil slots are left untouched.
// Values are expected to be sanitized (trimmed, phone normalized) before the
// patch is constructed.
type FieldPatch struct {
	Username   *string
	FIO        *string
	City       *string
	DOB        *string
	Companions *string
	Phone      *string
	Comment    *string
	Shift      *string
	Event      *string

	PaymentProofFileID *string
	YooKassaPaymentID  *string

	FinalSentAt    *time.Time
	LastReminderAt *time.Time
	ConsentAt      *time.Time
}

func (p FieldPatch) IsEmpty() bool {
	return len(p.Updates()) == 0
}

// Updates builds the column map for a store write.
func (p FieldPatch) Updates() map[string]any {
	upd := make(map[string]any)
	setStr := func(column string, v *string) {
		if v != nil {
			upd[column] = *v
		}
	}
	setStr("username", p.Username)
	setStr("fio", p.FIO)
	setStr("city", p.City)
	setStr("dob", p.DOB)
	setStr("companions", p.Companions)
	setStr("phone", p.Phone)
	setStr("comment", p.Comment)
	setStr("shift", p.Shift)
	setStr("event", p.Event)
	setStr("payment_proof_file_id", p.PaymentProofFileID)
	setStr("yoo_kassa_payment_id", p.YooKassaPaymentID)

	if p.FinalSentAt != nil {
		upd["final_sent_at"] = *p.FinalSentAt
	}
	if p.LastReminderAt != nil {
		upd["last_reminder_at"] = *p.LastReminderAt
	}
	if p.ConsentAt != nil {
		upd["consent_at"] = *p.ConsentAt
	}
	return upd
}

// Apply mirrors Updates onto an in-memory participant, so the cached copy
// matches what the store wrote.
func (p FieldPatch) Apply(target *Participant) {
	applyStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	applyStr(&target.Username, p.Username)
	applyStr(&target.FIO, p.FIO)
	applyStr(&target.City, p.City)
	applyStr(&target.DOB, p.DOB)
	applyStr(&target.Companions, p.Companions)
	applyStr(&target.Phone, p.Phone)
	applyStr(&target.Comment, p.Comment)
	applyStr(&target.Shift, p.Shift)
	applyStr(&target.Event, p.Event)
	applyStr(&target.PaymentProofFileID, p.PaymentProofFileID)
	applyStr(&target.YooKassaPaymentID, p.YooKassaPaymentID)

	if p.FinalSentAt != nil {
		t := *p.FinalSentAt
		target.FinalSentAt = &t
	}
	if p.LastReminderAt != nil {
		t := *p.LastReminderAt
		target.LastReminderAt = &t
	}
	if p.ConsentAt != nil {
		t := *p.ConsentAt
		target.ConsentAt = &t
	}
}
