package materialize

import (
	"strings"
	"testing"
	"time"

	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/message"
)

func raw(uid string, body string) *mailstore.RawMessage {
	return &mailstore.RawMessage{
		Descriptor: mailstore.Descriptor{UID: message.ID(uid), Size: int64(len(body))},
		Body:       []byte(body),
	}
}

const alternative = "From: Alice <alice@example.org>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
	"Subject: greetings\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain rendering\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>rich rendering</p>\r\n" +
	"--frontier--\r\n"

func TestMaterializeAlternativePrefersHTML(t *testing.T) {
	msg := Materialize(raw("1", alternative), nil)

	if msg.HTMLBody == "" || !strings.Contains(msg.HTMLBody, "<p>rich rendering</p>") {
		t.Errorf("HTMLBody = %q, want the html part", msg.HTMLBody)
	}
	// Once an HTML part is chosen the plain text is derived from it, not
	// taken from the text/plain sibling.
	if !strings.Contains(msg.Body, "rich rendering") {
		t.Errorf("Body = %q, want text derived from html", msg.Body)
	}
	if strings.Contains(msg.Body, "plain rendering") {
		t.Errorf("Body = %q, should not keep the plain part", msg.Body)
	}
	if msg.FromName != "Alice" || msg.FromEmail != "alice@example.org" {
		t.Errorf("From = %q <%q>", msg.FromName, msg.FromEmail)
	}
	if msg.Subject != "greetings" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
	if !msg.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", msg.Date, want)
	}
}

func TestMaterializeFirstHTMLPartWins(t *testing.T) {
	src := "From: a@example.org\r\n" +
		"Subject: two html parts\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=b\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>first</p>\r\n" +
		"--b\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>second</p>\r\n" +
		"--b--\r\n"

	msg := Materialize(raw("1", src), nil)
	if !strings.Contains(msg.HTMLBody, "first") || strings.Contains(msg.HTMLBody, "second") {
		t.Errorf("HTMLBody = %q, want only the first html part", msg.HTMLBody)
	}
}

func TestMaterializePlainOnly(t *testing.T) {
	src := "From: a@example.org\r\n" +
		"Subject: plain\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"just text\r\n"

	msg := Materialize(raw("1", src), nil)
	if !strings.Contains(msg.Body, "just text") {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.HTMLBody != "" {
		t.Errorf("HTMLBody = %q, want empty", msg.HTMLBody)
	}
}

func TestMaterializeUnparsableFallsBackToRawBody(t *testing.T) {
	src := "not a header at all\njust some bytes"

	msg := Materialize(raw("1", src), nil)
	if msg.Body != src {
		t.Errorf("Body = %q, want the raw payload", msg.Body)
	}
}

func TestMaterializeAttachment(t *testing.T) {
	src := "From: a@example.org\r\n" +
		"Subject: with attachment\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=b\r\n" +
		"\r\n" +
		"--b\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--b\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=report.pdf\r\n" +
		"Content-Id: <part1@example>\r\n" +
		"\r\n" +
		"%PDF-1.4 fake\r\n" +
		"--b--\r\n"

	msg := Materialize(raw("1", src), nil)
	if len(msg.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "report.pdf" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", att.ContentType)
	}
	if att.ContentID != "part1@example" {
		t.Errorf("ContentID = %q, want brackets stripped", att.ContentID)
	}
	if att.Size == 0 {
		t.Error("Size = 0, want the part length")
	}
}

func TestMaterializeHeaderOverridesEnvelope(t *testing.T) {
	r := raw("1", "From: Real Sender <real@example.org>\r\n"+
		"Subject: real subject\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"+
		"body\r\n")
	r.Envelope = mailstore.Envelope{
		FromName:  "Stale",
		FromEmail: "stale@example.org",
		Subject:   "stale subject",
	}

	msg := Materialize(r, nil)
	if msg.FromEmail != "real@example.org" {
		t.Errorf("FromEmail = %q, want the full header to win", msg.FromEmail)
	}
	if msg.Subject != "real subject" {
		t.Errorf("Subject = %q", msg.Subject)
	}
}

func TestMaterializeKeepsEnvelopeWhenHeaderFieldAbsent(t *testing.T) {
	r := raw("1", "Subject: only a subject\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"+
		"body\r\n")
	r.Envelope = mailstore.Envelope{FromEmail: "envelope@example.org"}

	msg := Materialize(r, nil)
	if msg.FromEmail != "envelope@example.org" {
		t.Errorf("FromEmail = %q, want the bulk-fetch value kept", msg.FromEmail)
	}
}

func TestFromDescriptor(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	d := mailstore.Descriptor{
		UID:  "42",
		Size: 1234,
		Seen: true,
		Envelope: mailstore.Envelope{
			FromName:  "Alice",
			FromEmail: "alice@example.org",
			Subject:   "hi",
			Date:      time.Date(2006, 1, 2, 18, 4, 5, 0, loc),
		},
	}

	msg := FromDescriptor(d)
	if msg.ID != "42" || msg.Size != 1234 || !msg.Read {
		t.Errorf("descriptor fields not carried over: %+v", msg)
	}
	if msg.Date.Location() != time.UTC {
		t.Errorf("Date location = %v, want UTC", msg.Date.Location())
	}
	if msg.HasBody() {
		t.Error("header-only message should not report a body")
	}
}
