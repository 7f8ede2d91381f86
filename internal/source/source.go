// Package source defines the contract for mailbox providers that search and
// fetch messages on behalf of an account.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError indicates that the provider rejected the account's token. It is
// returned by mailbox clients when the remote API answers with an
// authentication failure.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Window is the half-open time range [Start, End) a search is limited to.
// It is computed once per run, not per account.
type Window struct {
	Start time.Time
	End   time.Time
}

// Attachment describes one attachment of a fetched message. Data is
// populated when the provider already holds the content; otherwise the
// content must be fetched through Mailbox.Attachment using ID.
type Attachment struct {
	ID       string
	Filename string
	MIMEType string
	Size     int64
	Data     []byte
}

// Message is one fetched message with the text fields the filter engine
// evaluates. Missing fields are empty strings.
type Message struct {
	ID          string
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailbox is the message search/fetch collaborator for one account.
type Mailbox interface {
	// Search returns the messages matching the coarse query within the
	// window, including attachment descriptors. The query only narrows the
	// candidate set; exact filtering happens locally.
	Search(ctx context.Context, query string, w Window) ([]Message, error)

	// Attachment fetches the content of one attachment by message and
	// attachment ID.
	Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)

	// CheckToken performs a lightweight round-trip to confirm the
	// account's token is currently accepted.
	CheckToken(ctx context.Context) error
}
