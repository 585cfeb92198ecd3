package message

import "time"

// ID is the protocol-assigned unique identifier of a message within a
// folder. It is opaque to this package: stable across sessions for IMAP,
// not guaranteed (and possibly empty) for POP3 servers without UIDL.
type ID string

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id,omitempty"`
	Size        int64  `json:"size"`
}

// Message is the structured domain object produced from a fetched raw
// message. Body and HTMLBody stay empty until a full-body fetch has been
// performed; a header-only message carries only the header fields.
type Message struct {
	ID        ID     `json:"id"`
	Size      int64  `json:"size"`
	Read      bool   `json:"read"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
	// Date is normalized to UTC. The zero value means the header was
	// absent from the message.
	Date        time.Time    `json:"date,omitempty"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body,omitempty"`
	HTMLBody    string       `json:"html_body,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// HasBody reports whether a full-body fetch has populated this message.
func (m *Message) HasBody() bool {
	return m.Body != "" || m.HTMLBody != ""
}

// From renders the sender as "Name <email>" the way the UI expects it.
func (m *Message) From() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	if m.FromEmail == "" {
		return m.FromName
	}
	return m.FromName + " <" + m.FromEmail + ">"
}
