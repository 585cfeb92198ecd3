package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bscott/mailsync/internal/config"
	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/smtp"
)

type SendCmd struct {
	Account string   `arg:"" help:"Account name"`
	To      []string `help:"Recipient(s)" short:"t" required:""`
	Subject string   `help:"Subject line" short:"s" required:""`
	Body    string   `help:"Body text (or use stdin)" short:"b"`
	From    string   `help:"Sender address (defaults to the outgoing username)" short:"f"`
}

func (c *SendCmd) Run(ctx *Context) error {
	acc, err := ctx.Config.Account(c.Account)
	if err != nil {
		return err
	}
	if acc.SMTPHost == "" {
		return fmt.Errorf("account %s has no outgoing server configured", acc.Name)
	}

	stat, _ := os.Stdin.Stat()
	piped := (stat.Mode() & os.ModeCharDevice) == 0
	body, err := resolveBody(c.Body, os.Stdin, piped)
	if err != nil {
		return err
	}

	auth := &config.KeyringAuthenticator{Account: *acc}
	from := c.From
	if from == "" {
		from = auth.Username(mailstore.Outgoing)
	}

	msg := &smtp.Message{
		From:    from,
		To:      c.To,
		Subject: c.Subject,
		Body:    body,
	}

	ctx.Formatter.Verbosef("Sending message to %s...", strings.Join(c.To, ", "))

	client := smtp.NewClient(*acc, auth, mailstore.NewTrustStore(), ctx.Logger)
	if err := client.Send(context.Background(), msg); err != nil {
		return err
	}

	if ctx.Globals.JSON {
		return ctx.Formatter.PrintJSON(map[string]interface{}{
			"success": true,
			"to":      c.To,
			"subject": c.Subject,
		})
	}
	ctx.Formatter.PrintSuccess("Message sent")
	return nil
}

// resolveBody prefers the flag value and falls back to piped stdin.
func resolveBody(flagBody string, stdin io.Reader, piped bool) (string, error) {
	if flagBody != "" {
		return flagBody, nil
	}
	if piped {
		scanner := bufio.NewScanner(stdin)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading body from stdin: %w", err)
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n"), nil
		}
	}
	return "", fmt.Errorf("no message body provided - use --body or pipe via stdin")
}
