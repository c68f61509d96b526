package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/orlyatnik/campbot/internal/anketa"
	"github.com/orlyatnik/campbot/internal/kb"
	"github.com/orlyatnik/campbot/internal/models"
	"github.com/orlyatnik/campbot/internal/storage"
	"gopkg.in/telebot.v4"
)

const adminHelp = `Команды:
/confirm <user_id> — подтвердить оплату (PAYMENT_SENT → CONFIRMED)
/anketa <user_id> — показать анкету участника
/set <KEY> <значение> — изменить настройку
/settings — список настроек
/broadcast <all|confirmed|waiting> <текст> — рассылка`

func (b *Bot) handleAdminCommand(uc *UpdateContext, text string) error {
	fields := strings.Fields(text)
	cmd := fields[0]

	switch cmd {
	case "/confirm":
		return b.adminConfirm(uc, fields[1:])
	case "/anketa":
		return b.adminAnketa(uc, fields[1:])
	case "/set":
		return b.adminSet(uc, text, fields[1:])
	case "/settings":
		return b.adminSettings(uc)
	case "/broadcast":
		return b.adminBroadcast(uc, text, fields[1:])
	}
	return uc.Reply(adminHelp)
}

func parseUserIDArg(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing user_id")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func (b *Bot) adminConfirm(uc *UpdateContext, args []string) error {
	userID, err := parseUserIDArg(args)
	if err != nil {
		return uc.Reply("Использование: /confirm <user_id>")
	}

	return b.registry.RunExclusive(userID, func() error {
		p, err := b.registry.Transition(uc, userID, models.StatusConfirmed, models.FieldPatch{})
		if err != nil {
			return uc.Reply(fmt.Sprintf("Не получилось: %v", err))
		}
		if p.Status != models.StatusConfirmed {
			return uc.Reply(fmt.Sprintf("Участник %d сейчас в статусе %s, подтвердить нельзя.", userID, p.Status))
		}
		return uc.Reply(fmt.Sprintf("Готово! Участник %d подтверждён, финальное сообщение уйдёт автоматически.", userID))
	})
}

func (b *Bot) adminAnketa(uc *UpdateContext, args []string) error {
	userID, err := parseUserIDArg(args)
	if err != nil {
		return uc.Reply("Использование: /anketa <user_id>")
	}

	p, err := b.registry.Get(uc, userID)
	if err != nil {
		return uc.Reply(fmt.Sprintf("Не нашёл участника %d: %v", userID, err))
	}
	return uc.Reply(fmt.Sprintf("Статус: %s\n@%s\n\n%s", p.Status, p.Username, anketa.Format(p)))
}

func (b *Bot) adminSet(uc *UpdateContext, raw string, args []string) error {
	if len(args) < 2 {
		return uc.Reply("Использование: /set <KEY> <значение>")
	}
	key := args[0]
	if !kb.IsEditableKey(key) {
		return uc.Reply(fmt.Sprintf("Ключ %q редактировать нельзя. Список: /settings", key))
	}

	// Everything after the key, whitespace preserved.
	idx := strings.Index(raw, key)
	value := strings.TrimSpace(raw[idx+len(key):])
	if err := b.kb.Set(uc, key, value); err != nil {
		uc.L().Errorf("failed to save setting %s: %v", key, err)
		return uc.Reply("Не получилось сохранить, попробуй ещё раз.")
	}
	return uc.Reply(fmt.Sprintf("Сохранил: %s = %s", key, value))
}

func (b *Bot) adminSettings(uc *UpdateContext) error {
	var sb strings.Builder
	sb.WriteString("Редактируемые ключи:\n")
	for _, e := range kb.EditableKeys {
		fmt.Fprintf(&sb, "%s — %s\n", e.Key, e.Label)
	}
	return uc.Reply(sb.String())
}

func (b *Bot) adminBroadcast(uc *UpdateContext, raw string, args []string) error {
	if len(args) < 2 {
		return uc.Reply("Использование: /broadcast <all|confirmed|waiting> <текст>")
	}
	segment := storage.BroadcastSegment(args[0])

	idx := strings.Index(raw, args[0])
	text := strings.TrimSpace(raw[idx+len(args[0]):])

	recipients, err := b.storage.ForBroadcast(uc, segment)
	if err != nil {
		return uc.Reply(fmt.Sprintf("Не получилось: %v", err))
	}

	sent := 0
	for _, p := range recipients {
		if _, err := b.bot.Send(&telebot.Chat{ID: p.ChatID}, text); err != nil {
			uc.L().Warnf("broadcast to %d failed: %v", p.UserID, err)
			continue
		}
		sent++
	}
	return uc.Reply(fmt.Sprintf("Разослал %d из %d.", sent, len(recipients)))
}
