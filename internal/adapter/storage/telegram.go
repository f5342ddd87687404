package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/keepsake/internal/config"
)

// maxDocumentBytes is the Bot API upload limit.
const maxDocumentBytes = 50 << 20

// TelegramStorage delivers run summaries to a chat and, when allowed and
// small enough, the artifact itself.
type TelegramStorage struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

// Upload sends the file as a document. Oversized files and notify-only
// targets are skipped; Notify still reports them.
func (t *TelegramStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	if t.notifyOnly || !t.sendFile {
		return nil
	}

	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if fileInfo.Size() > maxDocumentBytes {
		return fmt.Errorf("%s is %s, over the telegram limit of %s",
			remoteName, humanize.IBytes(uint64(fileInfo.Size())), humanize.IBytes(maxDocumentBytes))
	}

	file := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	file.Caption = fmt.Sprintf("📦 Backup: %s (%s)", remoteName, humanize.IBytes(uint64(fileInfo.Size())))

	if _, err := t.bot.Send(file); err != nil {
		return fmt.Errorf("failed to send telegram file: %w", err)
	}
	return nil
}

func (t *TelegramStorage) Notify(ctx context.Context, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, "✅ "+message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func (t *TelegramStorage) List(ctx context.Context) ([]string, error) {
	// Telegram doesn't support listing files
	return []string{}, nil
}

func (t *TelegramStorage) Delete(ctx context.Context, remoteName string) error {
	// Telegram doesn't support deleting files
	return nil
}

func (t *TelegramStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	return []string{}, nil
}
