// Package materialize converts fully fetched raw messages into domain
// Message objects: header extraction with charset normalization, text
// part selection and attachment identification.
package materialize

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/message"
)

// FromDescriptor builds a header-only Message from bulk-fetch data. Body
// fields stay empty until Into is applied.
func FromDescriptor(d mailstore.Descriptor) *message.Message {
	return &message.Message{
		ID:        d.UID,
		Size:      d.Size,
		Read:      d.Seen,
		FromName:  d.Envelope.FromName,
		FromEmail: d.Envelope.FromEmail,
		Date:      d.Envelope.Date.UTC(),
		Subject:   d.Envelope.Subject,
	}
}

// Materialize turns one fully fetched raw message into a domain Message.
// It only reads already-fetched in-memory structure and never fails:
// malformed pieces are logged and their fields left empty.
func Materialize(raw *mailstore.RawMessage, log *zap.Logger) *message.Message {
	msg := FromDescriptor(raw.Descriptor)
	Into(msg, raw, log)
	return msg
}

// Into fills msg's header and body fields from raw, in place. The caller
// only invokes it once the full message has been fetched successfully,
// so a found-and-fetched message is never left half overwritten.
func Into(msg *message.Message, raw *mailstore.RawMessage, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Body))
	if err != nil {
		// Not MIME at all; keep the bulk-fetch headers and treat the
		// payload as plain text, matching what servers without proper
		// structure support hand us.
		log.Warn("unparsable message, treating as plain text", zap.Error(err))
		msg.Body = string(raw.Body)
		return
	}
	defer mr.Close()

	fillHeader(msg, &mr.Header, log)

	var htmlSeen bool
	msg.Body = ""
	msg.HTMLBody = ""
	msg.Attachments = nil

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn("broken MIME part, skipping rest", zap.Error(err))
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			ctype, params, err := h.ContentType()
			if err != nil {
				log.Warn("inline part without usable content type", zap.Error(err))
				continue
			}
			if !strings.HasPrefix(ctype, "text/") {
				// A non-text part where body text was expected; keep it
				// visible as an attachment instead of dropping it.
				log.Warn("non-text inline part", zap.String("type", ctype))
				msg.Attachments = append(msg.Attachments, inlineAttachment(h, ctype, params, part.Body))
				continue
			}

			body, err := io.ReadAll(part.Body)
			if err != nil {
				log.Warn("reading text part", zap.Error(err))
				continue
			}

			switch {
			case ctype == "text/html":
				if htmlSeen {
					// First HTML part wins; later ones are dropped.
					continue
				}
				htmlSeen = true
				msg.HTMLBody = string(body)
				msg.Body = htmlToText(msg.HTMLBody)
			case ctype == "text/plain":
				if !htmlSeen && msg.Body == "" {
					msg.Body = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			ctype, _, _ := h.ContentType()
			size, _ := io.Copy(io.Discard, part.Body)
			msg.Attachments = append(msg.Attachments, message.Attachment{
				Filename:    filename,
				ContentType: ctype,
				ContentID:   contentID(h.Get("Content-Id")),
				Size:        size,
			})
		}
	}
}

// fillHeader overrides the bulk-fetch envelope with the authoritative
// full header where present. Absent fields are left as-is rather than
// cleared, and an absent From is logged, not an error.
func fillHeader(msg *message.Message, h *mail.Header, log *zap.Logger) {
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromName = from[0].Name
		msg.FromEmail = from[0].Address
	} else if msg.FromEmail == "" {
		log.Warn("message has no usable From header")
	}

	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.Date = date.UTC()
	}

	if subject, err := h.Subject(); err == nil && subject != "" {
		msg.Subject = subject
	}
}

func inlineAttachment(h *mail.InlineHeader, ctype string, params map[string]string, body io.Reader) message.Attachment {
	size, _ := io.Copy(io.Discard, body)
	return message.Attachment{
		Filename:    params["name"],
		ContentType: ctype,
		ContentID:   contentID(h.Get("Content-Id")),
		Size:        size,
	}
}

func contentID(raw string) string {
	return strings.Trim(raw, "<>")
}
