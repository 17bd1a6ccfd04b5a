package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"court-intake-service/internal/logging"
	"court-intake-service/internal/models"
	"court-intake-service/internal/utils"
)

const telegramTextLimit = 4096

// ChatResolver finds the collaboration chat of a case.
type ChatResolver interface {
	ChatIDForCase(ctx context.Context, caseID int64) (int64, error)
}

type telegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*tgmodels.Message, error)
}

// TelegramMessenger posts case notifications to the case's Telegram chat.
type TelegramMessenger struct {
	api        telegramAPI
	chats      ChatResolver
	limiter    *rate.Limiter
	logger     *logging.Logger
	attempts   int
	retryDelay time.Duration
}

func NewTelegramMessenger(token string, ratePerSecond int, chats ChatResolver, logger *logging.Logger) (*TelegramMessenger, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegramMessenger(b, ratePerSecond, chats, logger), nil
}

func newTelegramMessenger(api telegramAPI, ratePerSecond int, chats ChatResolver, logger *logging.Logger) *TelegramMessenger {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &TelegramMessenger{
		api:        api,
		chats:      chats,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
		logger:     logger,
		attempts:   3,
		retryDelay: time.Second,
	}
}

// PostDocumentNotification sends text and then each attachment to the chat
// linked to caseID.
func (t *TelegramMessenger) PostDocumentNotification(ctx context.Context, caseID int64, text string, attachments []string) (models.MessageResult, error) {
	chatID, err := t.chats.ChatIDForCase(ctx, caseID)
	if err != nil {
		return models.MessageResult{}, err
	}
	if chatID == 0 {
		return models.MessageResult{Success: false, Message: fmt.Sprintf("case %d has no chat configured", caseID)}, nil
	}
	log := t.logger.WithField("chat_id", chatID)

	if err := t.limiter.Wait(ctx); err != nil {
		return models.MessageResult{}, fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	err = utils.Retry(ctx, log, t.attempts, t.retryDelay, func() error {
		_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: truncate(text, telegramTextLimit)})
		if err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
		}
		return nil
	})
	if err != nil {
		return models.MessageResult{}, err
	}

	var failed []string
	for _, path := range attachments {
		if err := t.limiter.Wait(ctx); err != nil {
			return models.MessageResult{}, fmt.Errorf("telegram rate limit exceeded: %w", err)
		}
		err := utils.Retry(ctx, log, t.attempts, t.retryDelay, func() error {
			return t.sendDocument(ctx, chatID, path)
		})
		if err != nil {
			log.Errorf("Send document %s: %v", path, err)
			failed = append(failed, filepath.Base(path))
		}
	}
	if len(failed) > 0 {
		return models.MessageResult{Success: false, Message: "failed to send documents: " + strings.Join(failed, ", ")}, nil
	}
	return models.MessageResult{Success: true, Message: fmt.Sprintf("sent message and %d documents", len(attachments))}, nil
}

func (t *TelegramMessenger) sendDocument(ctx context.Context, chatID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return utils.Permanent{Err: err}
	}
	defer f.Close()

	_, err = t.api.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &tgmodels.InputFileUpload{Filename: filepath.Base(path), Data: f},
	})
	if err != nil {
		return fmt.Errorf("failed to send %s to chat_id %d: %w", filepath.Base(path), chatID, err)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}

// LogMessenger only logs notifications. It stands in when no bot token is configured.
type LogMessenger struct {
	logger *logging.Logger
}

func NewLogMessenger(logger *logging.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

func (l *LogMessenger) PostDocumentNotification(_ context.Context, caseID int64, text string, attachments []string) (models.MessageResult, error) {
	l.logger.WithField("case_id", caseID).Infof("Notification (%d documents): %s", len(attachments), truncate(text, 200))
	return models.MessageResult{Success: true, Message: "logged"}, nil
}
