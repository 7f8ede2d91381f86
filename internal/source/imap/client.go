// Package imap implements the mailbox provider contract over IMAP for
// providers that expose OAuth-bearer logins, as an alternative to the Gmail
// REST API.
package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"

	"github.com/nhle/mailsnag/internal/source"
	"github.com/nhle/mailsnag/internal/vault"
)

// Client connects to an IMAP server and authenticates with the account's
// access token via OAUTHBEARER. Each operation opens its own connection.
type Client struct {
	addr    string
	account string
	token   string
	logger  *log.Logger

	// attachment content arrives with the body fetch, keyed by
	// messageID/attachmentID for later retrieval.
	content map[string][]byte
}

// New creates an IMAP client for the given server address (host:port) and
// token bundle.
func New(addr string, rec vault.Record, logger *log.Logger) *Client {
	return &Client{
		addr:    addr,
		account: rec.AccountID,
		token:   rec.AccessToken,
		logger:  logger,
		content: make(map[string][]byte),
	}
}

// connect dials the server over TLS, authenticates, and selects INBOX. The
// caller is responsible for logging out the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	client, err := imapclient.DialTLS(c.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", c.addr, err)
	}

	host, portStr, err := net.SplitHostPort(c.addr)
	if err != nil {
		host = c.addr
		portStr = "993"
	}
	port, _ := strconv.Atoi(portStr)

	saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: c.account,
		Token:    c.token,
		Host:     host,
		Port:     port,
	})
	if err := client.Authenticate(saslClient); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Account: c.account,
			Message: fmt.Sprintf("authentication failed: %v", err),
		}
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	return client, nil
}

// Search translates the coarse query into IMAP search criteria, fetches the
// matching messages in full, and parses out text bodies and attachments.
// Attachment content is retained for later Attachment calls.
func (c *Client) Search(ctx context.Context, query string, w source.Window) ([]source.Message, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	crit := criteria(query, w)
	c.logf("imap search for %s: %+v", c.account, crit)

	searchData, err := client.UIDSearch(crit, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
	defer fetchCmd.Close()

	var messages []source.Message
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		m := c.messageFromBuffer(buf, bodySection)
		messages = append(messages, m)
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching messages: %w", err)
	}

	return messages, nil
}

// Attachment returns content captured during the preceding Search.
func (c *Client) Attachment(_ context.Context, messageID, attachmentID string) ([]byte, error) {
	data, ok := c.content[messageID+"/"+attachmentID]
	if !ok {
		return nil, fmt.Errorf("no content for attachment %s of message %s", attachmentID, messageID)
	}
	return data, nil
}

// CheckToken confirms the token is accepted by authenticating and selecting
// INBOX.
func (c *Client) CheckToken(ctx context.Context) error {
	client, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return client.Logout().Wait()
}

// messageFromBuffer maps a fetched message onto the provider-neutral shape,
// parsing the raw body for text and attachments.
func (c *Client) messageFromBuffer(buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection) source.Message {
	m := source.Message{ID: fmt.Sprintf("%d", uint32(buf.UID))}

	if buf.Envelope != nil {
		m.Subject = buf.Envelope.Subject
		if len(buf.Envelope.From) > 0 {
			m.From = buf.Envelope.From[0].Addr()
		}
		var to []string
		for _, addr := range buf.Envelope.To {
			to = append(to, addr.Addr())
		}
		m.To = strings.Join(to, ", ")
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return m
	}

	text, attachments := parseBody(raw)
	m.Body = text
	for i, att := range attachments {
		att.ID = strconv.Itoa(i)
		c.content[m.ID+"/"+att.ID] = att.Data
		m.Attachments = append(m.Attachments, att)
	}
	return m
}

// parseBody parses a raw RFC 2822 message, returning the plain-text body
// (HTML as fallback) and the attachments with their content.
func parseBody(raw []byte) (string, []source.Attachment) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Unparseable structure: treat the whole thing as plain text.
		return string(raw), nil
	}
	defer mr.Close()

	var text, html string
	var attachments []source.Attachment

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && text == "":
				text = string(body)
			case strings.HasPrefix(contentType, "text/html") && html == "":
				html = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			attachments = append(attachments, source.Attachment{
				Filename: filename,
				MIMEType: contentType,
				Size:     int64(len(body)),
				Data:     body,
			})
		}
	}

	if text == "" {
		text = html
	}
	return text, attachments
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
