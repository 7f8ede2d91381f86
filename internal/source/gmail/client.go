// Package gmail implements the mailbox provider contract on top of the
// Gmail REST API, plus the interactive authorization-code flow.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/mailsnag/internal/source"
	"github.com/nhle/mailsnag/internal/vault"
)

// pageSize bounds a single Messages.List page. Gmail caps this at 500.
const pageSize = 100

// Client wraps the Gmail API for one account.
type Client struct {
	svc     *gmail.Service
	account string
	logger  *log.Logger
}

// New builds a Gmail client authenticated with the record's token bundle.
// The underlying token source refreshes transparently during long runs.
func New(ctx context.Context, rec vault.Record, logger *log.Logger) (*Client, error) {
	conf := &oauth2.Config{
		ClientID:     rec.ClientID,
		ClientSecret: rec.ClientSecret,
		Scopes:       rec.Scopes,
		Endpoint:     oauth2.Endpoint{TokenURL: rec.TokenEndpoint},
	}
	tok := &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.Expiry,
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service for %s: %w", rec.AccountID, err)
	}

	return &Client{svc: svc, account: rec.AccountID, logger: logger}, nil
}

// dateQuery appends the window bounds to the coarse query. before: excludes
// the named date itself, so the end bound names the following day to keep
// messages from End's own date in the candidate set.
func dateQuery(query string, w source.Window) string {
	return fmt.Sprintf("%s after:%s before:%s",
		query,
		w.Start.Format("2006/01/02"),
		w.End.AddDate(0, 0, 1).Format("2006/01/02"))
}

// Search lists messages matching the coarse query within the window and
// fetches each in full so the caller can filter on header and body text.
func (c *Client) Search(ctx context.Context, query string, w source.Window) ([]source.Message, error) {
	q := dateQuery(query, w)
	c.logf("gmail search for %s: %q", c.account, q)

	var ids []string
	pageToken := ""
	for {
		req := c.svc.Users.Messages.List("me").Q(q).MaxResults(pageSize)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		resp, err := req.Context(ctx).Do()
		if err != nil {
			return nil, c.wrapError(err, "listing messages")
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	messages := make([]source.Message, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full, err := c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, c.wrapError(err, fmt.Sprintf("fetching message %s", id))
		}
		messages = append(messages, convertMessage(full))
	}

	return messages, nil
}

// Attachment downloads one attachment's content and decodes it.
func (c *Client) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.svc.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, c.wrapError(err, fmt.Sprintf("fetching attachment %s of %s", attachmentID, messageID))
	}

	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

// CheckToken confirms the token is accepted with a profile lookup.
func (c *Client) CheckToken(ctx context.Context) error {
	if _, err := c.svc.Users.GetProfile("me").Context(ctx).Do(); err != nil {
		return c.wrapError(err, "fetching profile")
	}
	return nil
}

// wrapError converts 401 responses into source.AuthError and annotates
// everything else.
func (c *Client) wrapError(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		return &source.AuthError{
			Account: c.account,
			Message: fmt.Sprintf("%s: %v", op, err),
		}
	}
	return fmt.Errorf("%s for %s: %w", op, c.account, err)
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
