package models

import "time"

type Status string

const (
	StatusNew         Status = "NEW"
	StatusInfo        Status = "INFO"
	StatusWaitlist    Status = "WAITLIST"
	StatusFormFilling Status = "FORM_FILLING"
	StatusFormConfirm Status = "FORM_CONFIRM"
	StatusWaitPayment Status = "WAIT_PAYMENT"
	StatusPaymentSent Status = "PAYMENT_SENT"
	StatusConfirmed   Status = "CONFIRMED"
)

var validTransitions = map[Status][]Status{
	StatusNew:         {StatusInfo, StatusFormFilling, StatusWaitlist},
	StatusInfo:        {StatusFormFilling, StatusWaitlist},
	StatusWaitlist:    {StatusFormFilling, StatusNew},
	StatusFormFilling: {StatusFormConfirm},
	StatusFormConfirm: {StatusWaitPayment},
	StatusWaitPayment: {StatusPaymentSent},
	StatusPaymentSent: {StatusConfirmed},
	StatusConfirmed:   {},
}

// Known reports whether s is a member of the state machine's state set.
func (s Status) Known() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo reports whether the transition s -> to is in the table.
// Unknown source statuses allow nothing.
func (s Status) CanTransitionTo(to Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Participant struct {
	UserID int64 `gorm:"primaryKey"`

	Username string
	ChatID   int64

	Status Status `gorm:"index"`

	// Anketa fields. Empty string means "not collected yet".
	FIO        string `gorm:"column:fio"`
	City       string
	DOB        string `gorm:"column:dob"`
	Companions string
	Phone      string
	Comment    string
	Shift      string

	// Event variant the participant registered for. Empty means undecided.
	Event string `gorm:"index"`

	PaymentProofFileID string
	YooKassaPaymentID  string

	FinalSentAt    *time.Time
	LastReminderAt *time.Time
	ConsentAt      *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (p *Participant) HasConsent() bool {
	return p.ConsentAt != nil
}
