package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"jobalert-engine/internal/alert"
	"jobalert-engine/internal/bot"
	"jobalert-engine/internal/config"
	"jobalert-engine/internal/ledger"
	"jobalert-engine/internal/mailbox"
	"jobalert-engine/internal/notify"
	"jobalert-engine/internal/scheduler"
	"jobalert-engine/internal/secrets"
	"jobalert-engine/internal/store"
)

func main() {
	// .env is a dev convenience; absence is fine.
	_ = godotenv.Load()

	dataDir := os.Getenv("JOBALERT_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// One engine per data dir: two concurrent invocations would interleave
	// read-state mutations on the same mailbox.
	lk := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lk.TryLock()
	if err != nil {
		log.Fatalf("lock: %v", err)
	}
	if !locked {
		log.Fatalf("another engine instance holds %s", lk.Path())
	}
	defer func() { _ = lk.Unlock() }()

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	cfg, err := config.Load(userCfgPath)
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfg, validation := config.NormalizeAndValidate(cfg)
	for _, w := range validation.Warnings {
		log.Printf("[config] warning: %s", w)
	}
	if !validation.OK() {
		for _, e := range validation.Errors {
			log.Printf("[config] error: %s", e)
		}
		log.Fatalf("config invalid (%s)", userCfgPath)
	}
	// Write the normalized config back so defaults become explicit in the file.
	if err := config.SaveAtomic(userCfgPath, cfg); err != nil {
		log.Printf("[config] save normalized: %v", err)
	}

	db, err := store.Open(filepath.Join(dataDir, "jobalert.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal(err)
	}

	horizon := time.Duration(cfg.Alerts.HorizonHours) * time.Hour

	if cfg.Alerts.PersistSeen {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if n, err := db.EvictSeenBefore(ctx, time.Now().Add(-horizon)); err != nil {
			log.Printf("[store] evict seen: %v", err)
		} else if n > 0 {
			log.Printf("[store] evicted %d seen jobs older than %s", n, horizon)
		}
		cancel()
	}

	imapPassword, err := secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(cfg))
	if err != nil {
		log.Fatal(err)
	}
	botToken, err := secrets.GetTelegramToken()
	if err != nil {
		log.Fatal(err)
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}

	notifier := notify.NewTelegram(api)
	imapAddr := fmt.Sprintf("%s:%d", cfg.Email.IMAPHost, cfg.Email.IMAPPort)

	svc := &alert.Service{
		Dial: func(ctx context.Context) (alert.Session, error) {
			return mailbox.Dial(ctx, mailbox.Options{
				Addr:     imapAddr,
				Username: cfg.Email.Username,
				Password: imapPassword,
				Mailbox:  cfg.Email.Mailbox,
			})
		},
		Registry:  db,
		Notifier:  notifier,
		Horizon:   horizon,
		MaxEmails: cfg.Alerts.MaxEmails,
		Verbose:   cfg.Alerts.Verbose,
	}
	if cfg.Alerts.PersistSeen {
		svc.NewLedger = func() ledger.Ledger { return ledger.NewPersistent(db) }
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return bot.New(api, db, cfg.Telegram.UpdateTimeoutSeconds).Run(gctx)
	})

	g.Go(func() error {
		interval := time.Duration(cfg.Polling.EmailSeconds) * time.Second
		scheduler.Every(gctx, interval, "scan", func(c context.Context) error {
			cctx, cancel := context.WithTimeout(c, 2*time.Minute)
			defer cancel()
			return svc.ScanOnce(cctx)
		})
		return nil
	})

	log.Printf("engine running (data=%s imap=%s poll=%ds)", dataDir, imapAddr, cfg.Polling.EmailSeconds)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Printf("engine stopped")
}
