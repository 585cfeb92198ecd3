package config

import (
	"path/filepath"
	"testing"

	"github.com/bscott/mailsync/internal/mailstore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("default config has %d accounts", len(cfg.Accounts))
	}
}

func TestFolderName(t *testing.T) {
	acc := AccountConfig{}
	if got := acc.FolderName(); got != "INBOX" {
		t.Errorf("FolderName() = %q, want INBOX", got)
	}

	acc.Folder = "Archive"
	if got := acc.FolderName(); got != "Archive" {
		t.Errorf("FolderName() = %q, want Archive", got)
	}
}

func TestAccountLookup(t *testing.T) {
	cfg := &Config{Accounts: []AccountConfig{
		{Name: "work", Protocol: ProtocolIMAP},
		{Name: "personal", Protocol: ProtocolPOP3},
	}}

	acc, err := cfg.Account("personal")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acc.Protocol != ProtocolPOP3 {
		t.Errorf("Protocol = %q", acc.Protocol)
	}

	if _, err := cfg.Account("missing"); err == nil {
		t.Error("expected error for unknown account")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Accounts = []AccountConfig{{
		Name:        "work",
		Protocol:    ProtocolIMAP,
		Host:        "mail.example.org",
		Port:        993,
		UseTLS:      true,
		TLSRequired: true,
		Username:    "alice",
		OutUsername: "alice-smtp",
		Folder:      "Archive",
		SMTPHost:    "smtp.example.org",
		SMTPPort:    587,
	}}
	cfg.Database = "/tmp/messages.db"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Accounts) != 1 {
		t.Fatalf("got %d accounts", len(loaded.Accounts))
	}
	acc := loaded.Accounts[0]
	if acc.Host != "mail.example.org" || !acc.TLSRequired || acc.OutUsername != "alice-smtp" {
		t.Errorf("account did not survive the round trip: %+v", acc)
	}
	if loaded.Database != "/tmp/messages.db" {
		t.Errorf("Database = %q", loaded.Database)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestKeyringKey(t *testing.T) {
	if got := keyringKey("work", mailstore.Incoming); got != "work/in" {
		t.Errorf("keyringKey = %q", got)
	}
	if got := keyringKey("work", mailstore.Outgoing); got != "work/out" {
		t.Errorf("keyringKey = %q", got)
	}
}

func TestDatabasePathPrefersConfigured(t *testing.T) {
	cfg := &Config{Database: "/var/lib/mailsync/messages.db"}
	path, err := cfg.DatabasePath()
	if err != nil {
		t.Fatalf("DatabasePath: %v", err)
	}
	if path != "/var/lib/mailsync/messages.db" {
		t.Errorf("DatabasePath = %q", path)
	}
}
