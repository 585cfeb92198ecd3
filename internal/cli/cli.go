package cli

import (
	"github.com/bscott/mailsync/internal/config"
	"github.com/bscott/mailsync/internal/logging"
	"github.com/bscott/mailsync/internal/output"
	"go.uber.org/zap"
)

var Version = "0.1.0"

type Globals struct {
	JSON    bool   `help:"Output as JSON" name:"json"`
	Config  string `help:"Path to config file" short:"c" type:"path"`
	Verbose bool   `help:"Verbose output (debug-level logging)" short:"v"`
	Quiet   bool   `help:"Suppress non-essential output" short:"q"`
}

type CLI struct {
	Globals

	Config   ConfigCmd   `cmd:"" help:"Configuration management"`
	Sync     SyncCmd     `cmd:"" help:"Reconcile headers for configured accounts"`
	Fetch    FetchCmd    `cmd:"" help:"Fetch the full body of one stored message"`
	Mark     MarkCmd     `cmd:"" help:"Mark a message read or unread on the server"`
	Send     SendCmd     `cmd:"" help:"Send a message through the account's outgoing server"`
	Accounts AccountsCmd `cmd:"" help:"List configured accounts"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

type Context struct {
	Config    *config.Config
	Formatter *output.Formatter
	Logger    *zap.Logger
	Globals   *Globals
}

func NewContext(globals *Globals) (*Context, error) {
	formatter := output.New(globals.JSON, globals.Verbose, globals.Quiet)

	var cfg *config.Config
	var err error

	if globals.Config != "" {
		cfg, err = config.Load(globals.Config)
	} else if config.Exists() {
		cfg, err = config.Load("")
	}
	if err != nil && cfg == nil {
		cfg = config.DefaultConfig()
	}

	level := cfg.Log.Level
	if globals.Verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, File: cfg.Log.File})
	if err != nil {
		return nil, err
	}

	return &Context{
		Config:    cfg,
		Formatter: formatter,
		Logger:    logger,
		Globals:   globals,
	}, nil
}
