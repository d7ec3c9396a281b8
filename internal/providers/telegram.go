package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram/bot"

	"relief-alert-service/internal/logging"
	"relief-alert-service/internal/models"
	"relief-alert-service/internal/utils"
)

// TelegramConfig holds the operations chat a broadcast report goes to.
type TelegramConfig struct {
	BotToken  string
	ChatID    int64
	ServerURL string
	// Timeout bounds one report including retries. Defaults to 5s.
	Timeout time.Duration
}

const defaultTelegramTimeout = 5 * time.Second

// TelegramReporter posts a short report of every broadcast to an operations chat.
// Reports are sent in the background so a slow Telegram API never holds up
// the broadcast that produced them.
type TelegramReporter struct {
	bot        *bot.Bot
	chatID     int64
	timeout    time.Duration
	retryDelay time.Duration
	logger     *logging.Logger
	wg         sync.WaitGroup
}

func NewTelegramReporter(cfg TelegramConfig, logger *logging.Logger) (*TelegramReporter, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("missing telegram bot token")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("missing telegram chat id")
	}
	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTelegramTimeout
	}
	return &TelegramReporter{
		bot:        b,
		chatID:     cfg.ChatID,
		timeout:    timeout,
		retryDelay: time.Second,
		logger:     logger,
	}, nil
}

// BroadcastFinished queues the summary and returns immediately. Delivery
// failures are logged, never returned.
func (r *TelegramReporter) BroadcastFinished(_ context.Context, s models.BroadcastSummary) error {
	params := &bot.SendMessageParams{
		ChatID:    r.chatID,
		Text:      FormatSummary(s),
		ParseMode: "Markdown",
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.send(ctx, params); err != nil {
			r.logger.WithField("run_id", s.RunID).Errorf("Telegram report dropped: %v", err)
		}
	}()
	return nil
}

func (r *TelegramReporter) send(ctx context.Context, params *bot.SendMessageParams) error {
	return utils.Retry(ctx, r.logger, 3, r.retryDelay, func() error {
		if _, err := r.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", r.chatID, err)
		}
		return nil
	})
}

// Close waits for queued reports. Each one is bounded by the configured timeout.
func (r *TelegramReporter) Close() {
	r.wg.Wait()
}

// FormatSummary renders a broadcast summary as a Markdown message.
func FormatSummary(s models.BroadcastSummary) string {
	return fmt.Sprintf(
		"*%s* (%s)\n"+
			"*Run:* %s\n"+
			"*Delivered:* %d/%d\n"+
			"*Failed:* %d\n"+
			"*Took:* %s",
		s.Title,
		s.Category,
		s.RunID,
		s.Succeeded,
		s.Attempted,
		s.Failed,
		s.Duration.Round(time.Millisecond),
	)
}
