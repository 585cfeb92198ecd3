package cli

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bscott/mailsync/internal/config"
	"github.com/bscott/mailsync/internal/mailstore"
	"github.com/bscott/mailsync/internal/message"
	"github.com/bscott/mailsync/internal/storage"
	"github.com/bscott/mailsync/internal/worker"
)

type SyncCmd struct {
	Account     string `help:"Sync only the named account" short:"a"`
	AllMessages bool   `help:"Reconcile every message, not just unseen ones"`
}

type accountOutcome struct {
	Account string `json:"account"`
	New     int    `json:"new"`
	Updated int    `json:"updated"`
	Error   string `json:"error,omitempty"`
}

func (c *SyncCmd) Run(ctx *Context) error {
	accounts := ctx.Config.Accounts
	if c.Account != "" {
		acc, err := ctx.Config.Account(c.Account)
		if err != nil {
			return err
		}
		accounts = []config.AccountConfig{*acc}
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts configured - run 'mailsync config init'")
	}

	st, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	flags := worker.FetchNewOnly
	if c.AllMessages {
		flags = 0
	}

	trust := mailstore.NewTrustStore()
	outcomes := make([]accountOutcome, len(accounts))

	// Workers are fully independent; run them concurrently, one
	// goroutine per account.
	g, gctx := errgroup.WithContext(context.Background())
	for i, acc := range accounts {
		g.Go(func() error {
			auth := &config.KeyringAuthenticator{Account: acc}
			w := worker.New(acc, auth, st, trust, ctx.Logger)
			res, err := w.FetchNewHeaders(gctx, flags)
			outcomes[i] = accountOutcome{
				Account: acc.Name,
				New:     len(res.New),
				Updated: len(res.Updated),
			}
			if err != nil {
				// One broken account must not stop the others.
				outcomes[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return printOutcomes(ctx, outcomes)
}

func printOutcomes(ctx *Context, outcomes []accountOutcome) error {
	if ctx.Globals.JSON {
		return ctx.Formatter.PrintJSON(outcomes)
	}

	table := ctx.Formatter.NewTable("ACCOUNT", "NEW", "UPDATED", "STATUS")
	failed := 0
	for _, o := range outcomes {
		status := ctx.Formatter.SuccessText("ok")
		if o.Error != "" {
			status = ctx.Formatter.ErrorText(o.Error)
			failed++
		}
		table.AddRow(o.Account, fmt.Sprintf("%d", o.New), fmt.Sprintf("%d", o.Updated), status)
	}
	table.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to sync", failed, len(outcomes))
	}
	return nil
}

type FetchCmd struct {
	Account string `arg:"" help:"Account name"`
	UID     string `arg:"" help:"Unique id of the stored message"`
}

func (c *FetchCmd) Run(ctx *Context) error {
	acc, err := ctx.Config.Account(c.Account)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	msg, err := st.LoadMessage(context.Background(), acc.Name, acc.FolderName(), message.ID(c.UID))
	if err != nil {
		return fmt.Errorf("message %s not known locally, sync first: %w", c.UID, err)
	}

	auth := &config.KeyringAuthenticator{Account: *acc}
	w := worker.New(*acc, auth, st, mailstore.NewTrustStore(), ctx.Logger)
	found, err := w.FetchWholeMessage(context.Background(), msg)
	if err != nil {
		return err
	}
	if !found {
		ctx.Formatter.PrintError(fmt.Errorf("message %s no longer present on the server", c.UID))
		return nil
	}

	if ctx.Globals.JSON {
		return ctx.Formatter.PrintJSON(msg)
	}

	fmt.Fprintf(ctx.Formatter.Writer, "%s %s\n", ctx.Formatter.BoldText("From:"), msg.From())
	fmt.Fprintf(ctx.Formatter.Writer, "%s %s\n", ctx.Formatter.BoldText("Subject:"), msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(ctx.Formatter.Writer, "%s %s\n", ctx.Formatter.BoldText("Date:"), msg.Date.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintln(ctx.Formatter.Writer)
	fmt.Fprintln(ctx.Formatter.Writer, msg.Body)
	for _, att := range msg.Attachments {
		ctx.Formatter.Verbosef("attachment: %s (%s, %d bytes)", att.Filename, att.ContentType, att.Size)
	}
	return nil
}

type MarkCmd struct {
	Account string `arg:"" help:"Account name"`
	UID     string `arg:"" help:"Unique id of the message"`
	Unread  bool   `help:"Mark as unread instead of read"`
}

func (c *MarkCmd) Run(ctx *Context) error {
	acc, err := ctx.Config.Account(c.Account)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	auth := &config.KeyringAuthenticator{Account: *acc}
	w := worker.New(*acc, auth, st, mailstore.NewTrustStore(), ctx.Logger)
	if err := w.SetReadStatus(context.Background(), message.ID(c.UID), !c.Unread); err != nil {
		return err
	}

	status := "read"
	if c.Unread {
		status = "unread"
	}
	ctx.Formatter.PrintSuccess(fmt.Sprintf("Message %s marked %s", c.UID, status))
	return nil
}

type AccountsCmd struct{}

func (c *AccountsCmd) Run(ctx *Context) error {
	if ctx.Globals.JSON {
		return ctx.Formatter.PrintJSON(ctx.Config.Accounts)
	}
	table := ctx.Formatter.NewTable("NAME", "PROTOCOL", "HOST")
	for _, acc := range ctx.Config.Accounts {
		table.AddRow(acc.Name, string(acc.Protocol), fmt.Sprintf("%s:%d", acc.Host, acc.Port))
	}
	table.Flush()
	return nil
}

func openStorage(ctx *Context) (storage.Storage, error) {
	path, err := ctx.Config.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := storage.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("opening message database: %w", err)
	}
	return st, nil
}
