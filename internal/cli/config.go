package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/bscott/mailsync/internal/config"
	"github.com/bscott/mailsync/internal/mailstore"
)

type ConfigCmd struct {
	Init        ConfigInitCmd        `cmd:"" help:"Add an account interactively"`
	Show        ConfigShowCmd        `cmd:"" help:"Display current configuration"`
	SetPassword ConfigSetPasswordCmd `cmd:"" name:"set-password" help:"Store an account password in the system keyring"`
}

type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(ctx *Context) error {
	reader := bufio.NewReader(os.Stdin)

	acc := config.AccountConfig{
		UseTLS:       true,
		TLSRequired:  true,
		SASLFallback: true,
	}

	acc.Name = prompt(reader, "Account name")
	proto := strings.ToLower(prompt(reader, "Protocol (imap/pop3/maildir)"))
	switch config.Protocol(proto) {
	case config.ProtocolIMAP, config.ProtocolPOP3, config.ProtocolMaildir:
		acc.Protocol = config.Protocol(proto)
	default:
		return fmt.Errorf("unknown protocol %q", proto)
	}

	if acc.Protocol != config.ProtocolMaildir {
		acc.Host = prompt(reader, "Host")
		defPort := config.DefaultIMAPPort
		if acc.Protocol == config.ProtocolPOP3 {
			defPort = config.DefaultPOP3Port
		}
		portStr := prompt(reader, fmt.Sprintf("Port [%d]", defPort))
		if portStr == "" {
			acc.Port = defPort
		} else {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("invalid port %q", portStr)
			}
			acc.Port = port
		}
		acc.Username = prompt(reader, "Username")

		fmt.Print("Password: ")
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if err := config.SetPassword(acc.Name, mailstore.Incoming, string(password)); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
	}

	ctx.Config.Accounts = append(ctx.Config.Accounts, acc)
	if err := ctx.Config.Save(ctx.Globals.Config); err != nil {
		return err
	}

	ctx.Formatter.PrintSuccess(fmt.Sprintf("Account %s added", acc.Name))
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(ctx *Context) error {
	if ctx.Globals.JSON {
		return ctx.Formatter.PrintJSON(ctx.Config)
	}

	table := ctx.Formatter.NewTable("NAME", "PROTOCOL", "HOST", "FOLDER", "TLS")
	for _, acc := range ctx.Config.Accounts {
		tls := "no"
		if acc.UseTLS || acc.TLSRequired {
			tls = "yes"
		}
		table.AddRow(acc.Name, string(acc.Protocol),
			fmt.Sprintf("%s:%d", acc.Host, acc.Port), acc.FolderName(), tls)
	}
	table.Flush()
	return nil
}

type ConfigSetPasswordCmd struct {
	Account  string `arg:"" help:"Account name"`
	Outgoing bool   `help:"Set the outgoing (SMTP) password instead of the incoming one"`
}

func (c *ConfigSetPasswordCmd) Run(ctx *Context) error {
	if _, err := ctx.Config.Account(c.Account); err != nil {
		return err
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	dir := mailstore.Incoming
	if c.Outgoing {
		dir = mailstore.Outgoing
	}
	if err := config.SetPassword(c.Account, dir, string(password)); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}

	ctx.Formatter.PrintSuccess("Password stored")
	return nil
}
