// Package api is the HTTP side of the bot: a health endpoint and the
// YooKassa callback. The callback is the one mutation that originates
// outside the conversation, so it must force-invalidate the participant
// cache before reading.
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/orlyatnik/campbot/internal/config"
	"github.com/orlyatnik/campbot/internal/fsm"
	"github.com/orlyatnik/campbot/internal/models"
	"github.com/orlyatnik/campbot/internal/payment"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

type Service struct {
	config   *config.Config
	registry *fsm.Registry
	bot      telebot.API
}

func NewService(cfg *config.Config, registry *fsm.Registry, bot telebot.API) *Service {
	return &Service{
		config:   cfg,
		registry: registry,
		bot:      bot,
	}
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
}

// HandleYooKassaCallback advances WAIT_PAYMENT -> PAYMENT_SENT when the
// provider reports a succeeded payment. Always answers 200: YooKassa retries
// on anything else and every branch below is either done or permanently
// unprocessable.
func (s *Service) HandleYooKassaCallback() echo.HandlerFunc {
	return func(c echo.Context) error {
		var event payment.WebhookEvent
		if err := c.Bind(&event); err != nil {
			logrus.Warnf("yookassa callback: malformed body: %v", err)
			return c.NoContent(http.StatusOK)
		}
		if event.Event != payment.EventPaymentSucceeded || event.Object.ID == "" {
			return c.NoContent(http.StatusOK)
		}

		userID, err := strconv.ParseInt(event.Object.Metadata.UserID, 10, 64)
		if err != nil || userID <= 0 {
			logrus.Warnf("yookassa callback: bad user_id in metadata for payment %s", event.Object.ID)
			return c.NoContent(http.StatusOK)
		}

		ctx := c.Request().Context()
		err = s.registry.RunExclusive(userID, func() error {
			// The payment happened outside the conversation: drop the cached
			// row so the status check below sees the store's truth.
			s.registry.Invalidate(userID)

			p, err := s.registry.Get(ctx, userID)
			if err != nil {
				return fmt.Errorf("getting participant: %w", err)
			}
			if p.Status != models.StatusWaitPayment {
				logrus.Infof("yookassa callback: participant %d in status %s, skipping", userID, p.Status)
				return nil
			}
			if p.YooKassaPaymentID != event.Object.ID {
				logrus.Warnf("yookassa callback: payment id mismatch for %d", userID)
				return nil
			}

			updated, err := s.registry.Transition(ctx, userID, models.StatusPaymentSent, models.FieldPatch{})
			if err != nil {
				return fmt.Errorf("advancing status: %w", err)
			}

			if _, err := s.bot.Send(
				&telebot.Chat{ID: updated.ChatID},
				"Оплата получена! Можешь прислать чек сюда для сверки — тогда менеджер быстрее подтвердит.",
			); err != nil {
				logrus.Errorf("yookassa callback: failed to notify user %d: %v", userID, err)
			}
			s.notifyAdmins(fmt.Sprintf(
				"Оплата по ЮKassa получена.\nuser_id: %d\npayment_id: %s\nПодтверди командой /confirm %d после проверки.",
				userID, event.Object.ID, userID,
			))

			logrus.Infof("yookassa payment.succeeded processed for %d", userID)
			return nil
		})
		if err != nil {
			logrus.Errorf("yookassa callback: %v", err)
		}
		return c.NoContent(http.StatusOK)
	}
}

func (s *Service) notifyAdmins(text string) {
	for _, id := range s.config.AdminIDs() {
		if _, err := s.bot.Send(&telebot.Chat{ID: id}, text); err != nil {
			logrus.Errorf("failed to notify admin %d: %v", id, err)
		}
	}
}
