package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"github.com/bscott/mailsync/internal/mailstore"
)

const (
	AppName         = "mailsync"
	DefaultIMAPPort = 993
	DefaultPOP3Port = 995
	DefaultSMTPPort = 587
	DefaultFolder   = "INBOX"
)

// Protocol selects the incoming store kind for an account.
type Protocol string

const (
	ProtocolIMAP    Protocol = "imap"
	ProtocolPOP3    Protocol = "pop3"
	ProtocolMaildir Protocol = "maildir"
)

// AccountConfig holds one account's connection parameters. Credentials
// live in the system keyring, never in this file.
type AccountConfig struct {
	Name     string   `yaml:"name"`
	Protocol Protocol `yaml:"protocol"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`

	UseTLS       bool `yaml:"use_tls"`
	TLSRequired  bool `yaml:"tls_required"`
	UseSASL      bool `yaml:"use_sasl"`
	SASLFallback bool `yaml:"sasl_fallback"`

	Username string `yaml:"username"`
	// OutUsername overrides Username for the outgoing transport;
	// accounts may authenticate differently in each direction.
	OutUsername string `yaml:"out_username,omitempty"`

	Folder string `yaml:"folder,omitempty"`

	SMTPHost string `yaml:"smtp_host,omitempty"`
	SMTPPort int    `yaml:"smtp_port,omitempty"`
}

// FolderName returns the configured sync folder, defaulting to INBOX.
func (a *AccountConfig) FolderName() string {
	if a.Folder == "" {
		return DefaultFolder
	}
	return a.Folder
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

type Config struct {
	Accounts []AccountConfig `yaml:"accounts"`
	Database string          `yaml:"database,omitempty"`
	Log      LogConfig       `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
	}
}

// Account looks up an account by name.
func (c *Config) Account(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("no account named %q in config", name)
}

// DatabasePath returns the configured message database location,
// defaulting to messages.db next to the config file.
func (c *Config) DatabasePath() (string, error) {
	if c.Database != "" {
		return c.Database, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "messages.db"), nil
}

func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found at %s - run 'mailsync config init' to create one", path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func Exists() bool {
	path, err := ConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func keyringKey(account string, dir mailstore.Direction) string {
	return account + "/" + dir.String()
}

// SetPassword stores one direction's password in the system keyring.
func SetPassword(account string, dir mailstore.Direction, password string) error {
	if account == "" {
		return errors.New("account name must be set before storing password")
	}
	return keyring.Set(AppName, keyringKey(account, dir), password)
}

// GetPassword fetches a stored password, falling back to the incoming
// credential when no separate outgoing one was stored.
func GetPassword(account string, dir mailstore.Direction) (string, error) {
	password, err := keyring.Get(AppName, keyringKey(account, dir))
	if err == nil {
		return password, nil
	}
	if dir == mailstore.Outgoing && errors.Is(err, keyring.ErrNotFound) {
		return GetPassword(account, mailstore.Incoming)
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("password not found in keyring - run 'mailsync config set-password %s'", account)
	}
	return "", fmt.Errorf("failed to get password from keyring: %w", err)
}

func DeletePassword(account string, dir mailstore.Direction) error {
	return keyring.Delete(AppName, keyringKey(account, dir))
}
