package telegram

import (
	"context"
	"fmt"
	"os"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/sessionbot/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// MaxDocumentSize is the upload limit of the Bot API.
const MaxDocumentSize = 50 * 1024 * 1024

// SendDocument uploads the file at path under the given file name
func (b *Bot) SendDocument(ctx context.Context, chatID int64, path, name, caption string) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "telegram.send_document", attribute.Int64("chat.id", chatID))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat document: %w", err)
	}
	if info.Size() > MaxDocumentSize {
		return fmt.Errorf("document size %d exceeds maximum %d", info.Size(), MaxDocumentSize)
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: name, Reader: f})
	doc.Caption = caption

	if _, err := b.api.Send(doc); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to upload document: %w", err)
	}

	b.logger.Info().
		Int64("chat_id", chatID).
		Str("name", name).
		Int64("size", info.Size()).
		Msg("Document uploaded")

	return nil
}
