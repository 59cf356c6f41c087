package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		WhatsApp: WhatsAppConfig{
			Enabled:    true,
			InstanceID: "1101000001",
			Token:      "secret",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "weighbot",
		},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if cfg.WhatsApp.APIURL != defaultGreenAPIURL {
		t.Errorf("api url = %q", cfg.WhatsApp.APIURL)
	}
	if cfg.HTTP.Listen != "0.0.0.0" || cfg.HTTP.Port != 5000 {
		t.Errorf("http defaults = %q:%d", cfg.HTTP.Listen, cfg.HTTP.Port)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" || cfg.Database.MaxConnections != 10 {
		t.Errorf("db defaults = %+v", cfg.Database)
	}
	if cfg.Media.Dir != "uploads/photos" || cfg.Media.MaxBytes != 10<<20 || cfg.Media.KeepDays != 30 {
		t.Errorf("media defaults = %+v", cfg.Media)
	}
}

func TestNormalizeRequiresTransport(t *testing.T) {
	cfg := validConfig()
	cfg.WhatsApp.Enabled = false
	err := Normalize(cfg)
	if err == nil || !strings.Contains(err.Error(), "transport") {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestNormalizeRequiresGreenCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.WhatsApp.Token = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("missing token must fail")
	}

	cfg = validConfig()
	cfg.WhatsApp.InstanceID = " "
	if err := Normalize(cfg); err == nil {
		t.Fatal("missing instance id must fail")
	}
}

func TestNormalizeGroupChatSuffix(t *testing.T) {
	cfg := validConfig()
	cfg.WhatsApp.GroupChat = "120363043968066561"
	if err := Normalize(cfg); err == nil {
		t.Fatal("group chat without @ suffix must fail")
	}

	cfg.WhatsApp.GroupChat = "120363043968066561@g.us"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("valid group chat rejected: %v", err)
	}
}

func TestNormalizeTelegramOnly(t *testing.T) {
	cfg := validConfig()
	cfg.WhatsApp = WhatsAppConfig{}
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "123:abc"}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("telegram-only config rejected: %v", err)
	}
	if cfg.HTTP.Port != 5000 {
		t.Error("http defaults must apply without whatsapp")
	}

	cfg.Telegram.Token = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("telegram without token must fail")
	}
}

func TestNormalizeRequiresDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("missing db host must fail")
	}

	cfg = validConfig()
	cfg.Database.Name = ""
	if err := Normalize(cfg); err == nil {
		t.Fatal("missing db name must fail")
	}
}
