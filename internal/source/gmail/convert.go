package gmail

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/nhle/mailsnag/internal/source"
)

// convertMessage maps a full-format Gmail message onto the provider-neutral
// message shape: header fields, a plain-text body (HTML as fallback), and
// attachment descriptors.
func convertMessage(msg *gmail.Message) source.Message {
	out := source.Message{ID: msg.Id}
	if msg.Payload == nil {
		return out
	}

	out.From = header(msg.Payload, "From")
	out.To = header(msg.Payload, "To")
	out.Subject = header(msg.Payload, "Subject")

	var text, html string
	extractBody(msg.Payload, &text, &html)
	out.Body = text
	if out.Body == "" {
		out.Body = html
	}

	out.Attachments = extractAttachments(msg.Payload, nil)
	return out
}

// header returns the value of a top-level payload header, matched
// case-insensitively.
func header(payload *gmail.MessagePart, name string) string {
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody walks the MIME tree collecting the first text/plain and
// text/html parts. Part data is base64url-encoded by the API.
func extractBody(part *gmail.MessagePart, text, html *string) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			switch {
			case part.MimeType == "text/plain" && *text == "":
				*text = string(decoded)
			case part.MimeType == "text/html" && *html == "":
				*html = string(decoded)
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, text, html)
	}
}

// extractAttachments walks the MIME tree collecting attachment descriptors.
// A part with a filename is an attachment; small attachments may arrive
// inline with data instead of an attachment ID.
func extractAttachments(part *gmail.MessagePart, acc []source.Attachment) []source.Attachment {
	if part == nil {
		return acc
	}

	if part.Filename != "" {
		att := source.Attachment{
			Filename: part.Filename,
			MIMEType: part.MimeType,
		}
		if part.Body != nil {
			att.ID = part.Body.AttachmentId
			att.Size = part.Body.Size
			if part.Body.AttachmentId == "" && part.Body.Data != "" {
				if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					att.Data = decoded
				}
			}
		}
		acc = append(acc, att)
	}

	for _, p := range part.Parts {
		acc = extractAttachments(p, acc)
	}
	return acc
}
