package model

import (
	"context"
	"io"
)

// Mail is a single outgoing message with a plain text and an HTML body.
type Mail struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers mail. Implementations block until the transport accepted or rejected the message.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// ProfileArchive keeps raw OAuth profiles next to the user store.
type ProfileArchive interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Delete(ctx context.Context, key string) error
}
