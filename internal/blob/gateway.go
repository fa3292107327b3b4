package blob

//go:generate mockgen -source=gateway.go -destination=mock_gateway.go -package=blob

import (
	"context"
	"errors"
	"io"

	"github.com/michael-freling/telecloud/internal/db"
)

var (
	ErrUploadFailed      = errors.New("upload to the remote store failed")
	ErrObjectMissing     = errors.New("remote object is missing")
	ErrUpstream          = errors.New("remote store is unavailable")
	ErrPreviewNotAllowed = errors.New("file cannot be previewed")
)

// OwnerToken holds the transport credentials of one owner.
type OwnerToken struct {
	BotToken string
	ChatID   string
}

func OwnerTokenFrom(owner db.Owner) OwnerToken {
	return OwnerToken{
		BotToken: owner.TelegramBotToken,
		ChatID:   owner.TelegramChannelID,
	}
}

func (token OwnerToken) IsEmpty() bool {
	return token.BotToken == "" || token.ChatID == ""
}

type Gateway interface {
	// Upload stores r remotely. mimeType is detected from the content when empty.
	Upload(ctx context.Context, token OwnerToken, r io.Reader, filename string, mimeType string) (db.BlobRef, error)
	// Open returns the bytes of ref and their size, or -1 when unknown.
	Open(ctx context.Context, token OwnerToken, ref db.BlobRef) (io.ReadCloser, int64, error)
}
