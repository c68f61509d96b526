// Package anketa decides how far along a participant's form is and renders
// the questionnaire summary that is shown both to the participant for
// confirmation and to the admin for verification. The two renderings must be
// byte-identical, so formatting is fully deterministic.
package anketa

import (
	"fmt"
	"strings"

	"github.com/orlyatnik/campbot/internal/models"
)

type Field string

const (
	FieldFIO        Field = "fio"
	FieldCity       Field = "city"
	FieldDOB        Field = "dob"
	FieldCompanions Field = "companions"
	FieldPhone      Field = "phone"
	FieldShift      Field = "shift"
)

// RequiredFields is the fixed prompting order. The comment field is rendered
// but never required.
var RequiredFields = []Field{
	FieldFIO,
	FieldCity,
	FieldDOB,
	FieldCompanions,
	FieldPhone,
	FieldShift,
}

func fieldValue(p *models.Participant, f Field) string {
	switch f {
	case FieldFIO:
		return p.FIO
	case FieldCity:
		return p.City
	case FieldDOB:
		return p.DOB
	case FieldCompanions:
		return p.Companions
	case FieldPhone:
		return p.Phone
	case FieldShift:
		return p.Shift
	}
	return ""
}

func filled(v string) bool {
	return strings.TrimSpace(v) != ""
}

// IsComplete reports whether every required field holds a non-blank value.
func IsComplete(p *models.Participant) bool {
	for _, f := range RequiredFields {
		if !filled(fieldValue(p, f)) {
			return false
		}
	}
	return true
}

// NextEmptyField returns the first required field still blank, in prompting
// order, or "" when the form is complete.
func NextEmptyField(p *models.Participant) Field {
	for _, f := range RequiredFields {
		if !filled(fieldValue(p, f)) {
			return f
		}
	}
	return ""
}

const placeholder = "—"

func orDash(v string) string {
	if !filled(v) {
		return placeholder
	}
	return v
}

// Format renders the questionnaire block: fixed field order, fixed line
// count, dash placeholders for anything missing.
func Format(p *models.Participant) string {
	lines := []string{
		fmt.Sprintf("ФИО: %s", orDash(p.FIO)),
		fmt.Sprintf("Город: %s", orDash(p.City)),
		fmt.Sprintf("Дата рождения: %s", orDash(p.DOB)),
		fmt.Sprintf("С кем едет: %s", orDash(p.Companions)),
		fmt.Sprintf("Телефон: %s", orDash(p.Phone)),
		fmt.Sprintf("Особенности/аллергии: %s", orDash(p.Comment)),
		fmt.Sprintf("Смена: %s", orDash(p.Shift)),
	}
	return strings.Join(lines, "\n")
}
