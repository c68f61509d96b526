package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/orlyatnik/campbot/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

// RunFinalSender periodically delivers the terminal "you're in" message to
// confirmed participants and stamps final_sent_at so it goes out once.
func (b *Bot) RunFinalSender(ctx context.Context) {
	t := time.NewTicker(b.config.FinalSendInterval)
	defer t.Stop()

	logger := logrus.WithField("component", "final_sender")

	for {
		select {
		case <-t.C:
			pending, err := b.storage.PendingFinalSend(ctx)
			if err != nil {
				logger.Errorf("failed to get pending participants: %v", err)
				continue
			}
			for _, p := range pending {
				b.sendFinal(ctx, logger, p)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) sendFinal(ctx context.Context, logger *logrus.Entry, p *models.Participant) {
	link := b.config.ChatInviteLink
	if link == "" {
		link = "—"
	}
	text := fmt.Sprintf("Ты в списке!\n\nЧат участников: %s\nМенеджер: @%s", link, b.config.ManagerUsername)

	if _, err := b.bot.Send(&telebot.Chat{ID: p.ChatID}, text); err != nil {
		logger.Errorf("failed to send final message to %d: %v", p.UserID, err)
		return
	}

	err := b.registry.RunExclusive(p.UserID, func() error {
		now := time.Now()
		_, err := b.registry.Patch(ctx, p.UserID, models.FieldPatch{FinalSentAt: &now})
		return err
	})
	if err != nil {
		logger.Errorf("failed to stamp final send for %d: %v", p.UserID, err)
		return
	}
	logger.Infof("final message sent to %d", p.UserID)
}

// RunReminders nudges participants who went quiet mid-funnel, throttled by
// last_reminder_at.
func (b *Bot) RunReminders(ctx context.Context) {
	t := time.NewTicker(b.config.ReminderInterval)
	defer t.Stop()

	logger := logrus.WithField("component", "reminders")

	for {
		select {
		case <-t.C:
			stuck, err := b.storage.ForReminders(ctx, b.config.ReminderInactiveFor, b.config.ReminderCooldown)
			if err != nil {
				logger.Errorf("failed to get reminder candidates: %v", err)
				continue
			}
			for _, p := range stuck {
				b.sendReminder(ctx, logger, p)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) sendReminder(ctx context.Context, logger *logrus.Entry, p *models.Participant) {
	text := b.reminderText(p.Status)
	if text == "" {
		return
	}

	if _, err := b.bot.Send(&telebot.Chat{ID: p.ChatID}, text); err != nil {
		logger.Errorf("failed to send reminder to %d: %v", p.UserID, err)
		return
	}

	err := b.registry.RunExclusive(p.UserID, func() error {
		now := time.Now()
		_, err := b.registry.Patch(ctx, p.UserID, models.FieldPatch{LastReminderAt: &now})
		return err
	})
	if err != nil {
		logger.Errorf("failed to stamp reminder for %d: %v", p.UserID, err)
		return
	}
	logger.Infof("reminder sent to %d (status %s)", p.UserID, p.Status)
}

func (b *Bot) reminderText(status models.Status) string {
	current := b.kb.Current()
	switch status {
	case models.StatusNew, models.StatusInfo:
		return fmt.Sprintf("Привет! Ещё думаешь про «Орлятник 21+»? Ближайшая смена: %s. Если есть вопросы — просто напиши.", current.NextShiftText)
	case models.StatusFormFilling:
		return "Мы остановились на анкете — осталось совсем чуть-чуть. Продолжим?"
	case models.StatusFormConfirm:
		return "Анкета ждёт подтверждения. Напиши «да» — и перейдём к оплате."
	case models.StatusWaitPayment:
		return fmt.Sprintf("Напоминаю про задаток %d ₽. Реквизиты:\n%s", current.Deposit, current.PaymentDetails)
	case models.StatusPaymentSent:
		return "Чек у менеджера на проверке. Как подтвердим — сразу напишу!"
	}
	return ""
}
