// Package bot is the conversation layer: telebot handlers that route every
// inbound message through the registry and derive the next prompt.
package bot

import (
	"context"
	"fmt"
	"io"

	"github.com/orlyatnik/campbot/internal/config"
	"github.com/orlyatnik/campbot/internal/fsm"
	"github.com/orlyatnik/campbot/internal/kb"
	"github.com/orlyatnik/campbot/internal/llm"
	"github.com/orlyatnik/campbot/internal/models"
	"github.com/orlyatnik/campbot/internal/payment"
	"github.com/orlyatnik/campbot/internal/storage"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

// ReplyGenerator produces conversational replies. The bot only consumes the
// text and the extracted patch; any failure mode must come back as fallback
// content, never an error that would stall the conversation.
type ReplyGenerator interface {
	SalesReply(ctx context.Context, userMessage string) string
	FormModeReply(ctx context.Context, userMessage string, status models.Status, p *models.Participant) llm.FormReply
}

// VoiceTranscriber turns a downloaded voice file into text.
type VoiceTranscriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

type Bot struct {
	config   *config.Config
	storage  *storage.Storage
	registry *fsm.Registry
	kb       *kb.Runtime
	llm      ReplyGenerator
	voice    VoiceTranscriber
	payments *payment.YooKassa
	bot      telebot.API
}

func New(
	cfg *config.Config,
	store *storage.Storage,
	registry *fsm.Registry,
	runtime *kb.Runtime,
	replies ReplyGenerator,
	transcriber VoiceTranscriber,
	payments *payment.YooKassa,
	api telebot.API,
) *Bot {
	return &Bot{
		config:   cfg,
		storage:  store,
		registry: registry,
		kb:       runtime,
		llm:      replies,
		voice:    transcriber,
		payments: payments,
		bot:      api,
	}
}

func (b *Bot) somethingWrong() string {
	return fmt.Sprintf("Что-то пошло не так. Попробуй позже или напиши @%s.", b.config.ManagerUsername)
}

// HandleAnyUpdate is the single telebot entrypoint: dedupe, classify,
// dispatch. Handler errors are logged, not returned, so telebot never
// retries an update we half-processed.
func (b *Bot) HandleAnyUpdate(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.BotHandleTimeout)
	defer cancel()

	uc := NewUpdateContext(ctx, c)

	guard := b.registry.Guard()
	if guard.IsProcessed(c.Update().ID) {
		uc.L().Debugf("duplicate update %d dropped", c.Update().ID)
		return nil
	}
	guard.MarkProcessed(c.Update().ID)

	if c.Message() == nil || c.Sender() == nil || c.Chat() == nil {
		uc.L().Debug("ignoring update without message")
		return nil
	}
	if c.Chat().Type != telebot.ChatPrivate {
		uc.L().Debugf("ignoring update from non-private chat %d", c.Chat().ID)
		return nil
	}
	if c.Sender().IsBot {
		return nil
	}

	msg := c.Message()
	var err error
	switch {
	case msg.Voice != nil:
		err = b.HandleVoice(uc)
	case msg.Photo != nil:
		err = b.HandlePhoto(uc)
	case msg.Document != nil:
		err = b.HandleDocument(uc)
	case msg.Text != "":
		err = b.HandleText(uc)
	default:
		err = uc.Reply("Лучше напиши текстом или голосом — так смогу помочь. Если хочешь прислать чек — отправь фото или документ после перехода к оплате.")
	}
	if err != nil {
		uc.L().Errorf("failed to handle update: %v", err)
	}
	return nil
}

// appendLog records one conversation row. Logging is an observability side
// channel: a failure here is reported and otherwise ignored.
func (b *Bot) appendLog(uc *UpdateContext, p *models.Participant, direction models.Direction, msgType models.MessageType, preview string) {
	entry := &models.ConversationLog{
		UserID:      p.UserID,
		Status:      p.Status,
		Direction:   direction,
		MessageType: msgType,
		TextPreview: preview,
	}
	if err := b.storage.AppendLog(uc, entry); err != nil {
		uc.L().Warnf("failed to append conversation log: %v", err)
	}
}

// sendToAdmins delivers to every configured admin; one unreachable admin
// must not block the rest.
func (b *Bot) sendToAdmins(what any) {
	for _, id := range b.config.AdminIDs() {
		if _, err := b.bot.Send(&telebot.Chat{ID: id}, what); err != nil {
			logrus.Errorf("failed to send to admin %d: %v", id, err)
		}
	}
}
