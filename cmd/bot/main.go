package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/orlyatnik/campbot/internal/api"
	"github.com/orlyatnik/campbot/internal/bot"
	"github.com/orlyatnik/campbot/internal/config"
	"github.com/orlyatnik/campbot/internal/fsm"
	"github.com/orlyatnik/campbot/internal/kb"
	"github.com/orlyatnik/campbot/internal/llm"
	"github.com/orlyatnik/campbot/internal/logging"
	"github.com/orlyatnik/campbot/internal/payment"
	"github.com/orlyatnik/campbot/internal/storage"
	"github.com/orlyatnik/campbot/internal/voice"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	config.SetupCommon()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)
	if err := store.Migrate(); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	runtime := kb.NewRuntime(store)
	loadCtx, loadCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := runtime.Load(loadCtx); err != nil {
		logrus.Warnf("Failed to load settings, using defaults: %v", err)
	}
	loadCancel()

	registry := fsm.NewRegistry(store, cfg.CacheTTL)

	tb, err := telebot.NewBot(telebot.Settings{
		Token: cfg.TelegramToken,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			AllowedUpdates: []string{"message"},
		},
	})
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	b := bot.New(
		cfg,
		store,
		registry,
		runtime,
		llm.New(cfg, runtime),
		voice.New(cfg),
		payment.New(cfg),
		tb,
	)

	for _, updateType := range []string{
		telebot.OnText,
		telebot.OnVoice,
		telebot.OnPhoto,
		telebot.OnDocument,
		telebot.OnSticker,
		telebot.OnAnimation,
		telebot.OnVideo,
		telebot.OnAudio,
		telebot.OnVideoNote,
	} {
		tb.Handle(updateType, b.HandleAnyUpdate)
	}

	service := api.NewService(cfg, registry, tb)
	e := echo.New()
	e.HideBanner = true
	e.GET("/health", service.HandleHealth())
	e.POST("/yookassa/callback", service.HandleYooKassaCallback())

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		tb.Start()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.RunFinalSender(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.RunReminders(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.Start(cfg.ListenAddress); err != nil {
			logrus.Errorf("http server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	tb.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shut down http server: %v", err)
	}

	logrus.Info("waiting for services to finish")
	wg.Wait()
}
