package bot

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/orlyatnik/campbot/internal/anketa"
	"github.com/orlyatnik/campbot/internal/kb"
	"github.com/orlyatnik/campbot/internal/models"
	"gopkg.in/telebot.v4"
)

var (
	yesRe     = regexp.MustCompile(`(?i)^(да|подтверждаю|ок|окей|всё верно|верно)[!.]?$`)
	bookingRe = regexp.MustCompile(`(?i)хочу\s*(забронировать|записаться|участвовать|ехать)|бронирую|записываюсь`)
	consentRe = regexp.MustCompile(`(?i)^(согласен|согласна|даю согласие)[!.]?$`)
)

func (b *Bot) HandleText(uc *UpdateContext) error {
	text := strings.TrimSpace(uc.Message().Text)
	if text == "" {
		return nil
	}

	if b.config.IsAdmin(uc.Chat().ID) && strings.HasPrefix(text, "/") {
		return b.handleAdminCommand(uc, text)
	}

	return b.registry.RunExclusive(uc.UserID(), func() error {
		return b.converse(uc, text, models.MessageTypeText)
	})
}

func (b *Bot) HandleVoice(uc *UpdateContext) error {
	file, err := uc.Bot().File(&uc.Message().Voice.File)
	if err != nil {
		uc.L().Warnf("failed to download voice file: %v", err)
		return uc.Reply("Голос не разобрал. Напиши, пожалуйста, текстом.")
	}
	defer func() { _ = file.Close() }()

	text, err := b.voice.Transcribe(uc, file)
	if err != nil {
		uc.L().Warnf("failed to transcribe voice: %v", err)
		text = ""
	}
	if strings.TrimSpace(text) == "" {
		return uc.Reply("Голос не разобрал. Напиши, пожалуйста, текстом.")
	}

	return b.registry.RunExclusive(uc.UserID(), func() error {
		return b.converse(uc, strings.TrimSpace(text), models.MessageTypeVoiceTranscribed)
	})
}

// converse routes one incoming text by the participant's current status.
// Runs inside the user's serializer region.
func (b *Bot) converse(uc *UpdateContext, text string, msgType models.MessageType) error {
	current := b.kb.Current()

	p, err := b.registry.GetOrCreate(uc, uc.UserID(), uc.Chat().ID, uc.Sender().Username, current.DefaultShift)
	if err != nil {
		if rerr := uc.Reply(b.somethingWrong()); rerr != nil {
			uc.L().Errorf("failed to send error reply: %v", rerr)
		}
		return fmt.Errorf("getting participant: %w", err)
	}
	b.appendLog(uc, p, models.DirectionIn, msgType, text)

	switch {
	case p.Status == models.StatusFormConfirm && yesRe.MatchString(text):
		return b.startPayment(uc, p, current)

	case p.Status == models.StatusFormFilling || p.Status == models.StatusFormConfirm:
		return b.converseForm(uc, p, text, current)

	case p.Status == models.StatusWaitPayment || p.Status == models.StatusPaymentSent:
		return uc.Reply("Чек пришли фото или документом — тогда смогу принять. Если уже отправил(а) — жди подтверждения.")

	case p.Status == models.StatusConfirmed:
		link := b.config.ChatInviteLink
		if link == "" {
			link = "—"
		}
		return uc.Reply(fmt.Sprintf("Ты уже в списке! Чат: %s. Менеджер: @%s", link, b.config.ManagerUsername))

	case p.Status == models.StatusWaitlist:
		if !current.RegistrationClosed {
			return b.startFormFilling(uc, p, current)
		}
		return uc.Reply(fmt.Sprintf("Ты в списке ожидания. Как только откроем запись на смену «%s» — сразу напишу!", current.NextShiftText))
	}

	return b.converseSales(uc, p, text, current)
}

// converseSales handles NEW and INFO: free-form answers plus the hooks that
// move the user into the form.
func (b *Bot) converseSales(uc *UpdateContext, p *models.Participant, text string, current kb.KB) error {
	if b.config.ConsentRequired && !p.HasConsent() && consentRe.MatchString(text) {
		now := time.Now()
		updated, err := b.registry.Patch(uc, p.UserID, models.FieldPatch{ConsentAt: &now})
		if err != nil {
			return fmt.Errorf("recording consent: %w", err)
		}
		return b.startFormFilling(uc, updated, current)
	}

	reply := b.llm.SalesReply(uc, text)
	if err := uc.Reply(reply); err != nil {
		return fmt.Errorf("sending sales reply: %w", err)
	}
	b.appendLog(uc, p, models.DirectionOut, models.MessageTypeText, reply)

	if p.Status == models.StatusNew {
		if _, err := b.registry.Transition(uc, p.UserID, models.StatusInfo, models.FieldPatch{}); err != nil {
			uc.L().Errorf("failed to advance to INFO: %v", err)
		}
	}

	if !bookingRe.MatchString(text) {
		return nil
	}

	switch {
	case current.RegistrationClosed:
		if _, err := b.registry.Transition(uc, p.UserID, models.StatusWaitlist, models.FieldPatch{}); err != nil {
			return fmt.Errorf("moving to waitlist: %w", err)
		}
		return uc.Reply(fmt.Sprintf("Запись сейчас закрыта, но я добавил тебя в список ожидания на «%s». Напишу, как только откроемся!", current.NextShiftText))

	case b.config.ConsentRequired && !p.HasConsent():
		return uc.Reply("Перед анкетой нужно согласие на обработку персональных данных. Напиши «согласен» или «согласна» — и начнём.")
	}

	return b.startFormFilling(uc, p, current)
}

// startFormFilling moves the participant into the form and asks the first
// missing field.
func (b *Bot) startFormFilling(uc *UpdateContext, p *models.Participant, current kb.KB) error {
	updated, err := b.registry.Transition(uc, p.UserID, models.StatusFormFilling, models.FieldPatch{})
	if err != nil {
		return fmt.Errorf("starting form: %w", err)
	}

	next := anketa.NextEmptyField(updated)
	if next == "" {
		return uc.Reply("Анкета уже заполнена. Подтверди или измени данные:\n\n" + anketa.Format(updated))
	}
	return uc.Reply(current.FieldPrompts[next])
}

// converseForm runs the LLM extraction, persists whatever fields came out
// and either asks the next question or moves to confirmation.
func (b *Bot) converseForm(uc *UpdateContext, p *models.Participant, text string, current kb.KB) error {
	out := b.llm.FormModeReply(uc, text, p.Status, p)

	patch := out.FormPatch.ToFieldPatch(current.DefaultShift)
	if !patch.IsEmpty() {
		updated, err := b.registry.Patch(uc, p.UserID, patch)
		if err != nil {
			return fmt.Errorf("patching form fields: %w", err)
		}
		p = updated
	}

	var reply string
	if anketa.IsComplete(p) {
		if p.Status == models.StatusFormFilling {
			updated, err := b.registry.Transition(uc, p.UserID, models.StatusFormConfirm, models.FieldPatch{})
			if err != nil {
				return fmt.Errorf("moving to confirmation: %w", err)
			}
			p = updated
		}
		reply = fmt.Sprintf("Проверь анкету:\n\n%s\n\nВсё верно? Напиши «да» или «подтверждаю» — перейдём к оплате.", anketa.Format(p))
	} else {
		reply = out.ReplyText
		if next := anketa.NextEmptyField(p); next != "" {
			reply += "\n\n" + current.FieldPrompts[next]
		}
	}

	if err := uc.Reply(reply); err != nil {
		return fmt.Errorf("sending form reply: %w", err)
	}
	b.appendLog(uc, p, models.DirectionOut, models.MessageTypeText, reply)
	return nil
}

// startPayment confirms the anketa and hands out payment details, plus an
// online payment link when YooKassa is configured.
func (b *Bot) startPayment(uc *UpdateContext, p *models.Participant, current kb.KB) error {
	updated, err := b.registry.Transition(uc, p.UserID, models.StatusWaitPayment, models.FieldPatch{})
	if err != nil {
		return fmt.Errorf("moving to payment: %w", err)
	}
	p = updated

	text := fmt.Sprintf(
		"Отлично! Реквизиты для задатка (%d ₽):\n\n%s\n\nПовторяю анкету:\n%s\n\n%s",
		current.Deposit,
		current.PaymentDetails,
		anketa.Format(p),
		current.AfterPaymentText,
	)

	if b.payments.Enabled() {
		pay, err := b.payments.CreatePayment(uc, current.Deposit, p.UserID, "Задаток «Орлятник 21+»")
		if err != nil {
			uc.L().Errorf("failed to create payment: %v", err)
		} else {
			if _, err := b.registry.Patch(uc, p.UserID, models.FieldPatch{YooKassaPaymentID: &pay.ID}); err != nil {
				uc.L().Errorf("failed to store payment id: %v", err)
			}
			text += "\n\nМожно оплатить онлайн: " + pay.ConfirmationURL
		}
	}

	if err := uc.Reply(text); err != nil {
		return fmt.Errorf("sending payment instructions: %w", err)
	}
	b.appendLog(uc, p, models.DirectionOut, models.MessageTypeText, "payment instructions")
	return nil
}

// HandlePhoto and HandleDocument accept a payment proof once the
// participant has reached the payment phase.
func (b *Bot) HandlePhoto(uc *UpdateContext) error {
	return b.registry.RunExclusive(uc.UserID(), func() error {
		return b.acceptReceipt(uc, uc.Message().Photo.FileID, models.MessageTypePhoto)
	})
}

func (b *Bot) HandleDocument(uc *UpdateContext) error {
	return b.registry.RunExclusive(uc.UserID(), func() error {
		return b.acceptReceipt(uc, uc.Message().Document.FileID, models.MessageTypeDocument)
	})
}

func (b *Bot) acceptReceipt(uc *UpdateContext, fileID string, msgType models.MessageType) error {
	current := b.kb.Current()

	p, err := b.registry.GetOrCreate(uc, uc.UserID(), uc.Chat().ID, uc.Sender().Username, current.DefaultShift)
	if err != nil {
		if rerr := uc.Reply(b.somethingWrong()); rerr != nil {
			uc.L().Errorf("failed to send error reply: %v", rerr)
		}
		return fmt.Errorf("getting participant: %w", err)
	}
	b.appendLog(uc, p, models.DirectionIn, msgType, "["+string(msgType)+"]")

	if p.Status != models.StatusWaitPayment && p.Status != models.StatusPaymentSent {
		return uc.Reply("Приму это как чек только после того, как заполнишь анкету и перейдёшь к оплате. Пока что напиши текстом или голосом, что хочешь узнать.")
	}

	updated, err := b.registry.Transition(uc, p.UserID, models.StatusPaymentSent, models.FieldPatch{PaymentProofFileID: &fileID})
	if err != nil {
		return fmt.Errorf("recording payment proof: %w", err)
	}
	p = updated

	caption := fmt.Sprintf(
		"Чек от участника.\n@%s (id: %d)\n\n%s\n\nПодтверди оплату командой /confirm %d.",
		uc.Sender().Username,
		p.UserID,
		anketa.Format(p),
		p.UserID,
	)
	if msgType == models.MessageTypePhoto {
		b.sendToAdmins(&telebot.Photo{File: telebot.File{FileID: fileID}, Caption: caption})
	} else {
		b.sendToAdmins(&telebot.Document{File: telebot.File{FileID: fileID}, Caption: caption})
	}

	if err := uc.Reply("Принял, ждём подтверждения. Как только менеджер подтвердит — пришлю ссылку на чат и контакт."); err != nil {
		return fmt.Errorf("sending receipt ack: %w", err)
	}
	b.appendLog(uc, p, models.DirectionOut, models.MessageTypeText, "payment received")
	return nil
}
