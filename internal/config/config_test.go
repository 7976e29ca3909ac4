package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("ADMIN_TELEGRAM_IDS", "1, 2,x,3")
	t.Setenv("REWARD_START_TTL", "2h")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Errorf("Storage.Driver = %v, want %v", cfg.Storage.Driver, StorageMemory)
	}
	if !reflect.DeepEqual(cfg.Admin.TelegramIDs, []int64{1, 2, 3}) {
		t.Errorf("Admin.TelegramIDs = %v", cfg.Admin.TelegramIDs)
	}
	if cfg.Rewards.StartTTL != 2*time.Hour {
		t.Errorf("Rewards.StartTTL = %v, want 2h", cfg.Rewards.StartTTL)
	}
	if cfg.Telegram.RPS != 25 {
		t.Errorf("Telegram.RPS = %v, want 25", cfg.Telegram.RPS)
	}
	if cfg.Rewards.XPDivisor != 2 {
		t.Errorf("Rewards.XPDivisor = %v, want 2", cfg.Rewards.XPDivisor)
	}
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "sqlite")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() error = nil, want unknown driver error")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage:   StorageConfig{Driver: StoragePostgres},
			Telegram:  TelegramConfig{Timeout: time.Second},
			Rewards:   RewardsConfig{XPDivisor: 2, StartTTL: time.Hour},
			RateLimit: RateLimitConfig{UserRPS: 1, UserBurst: 1, AdminRPS: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero divisor", func(c *Config) { c.Rewards.XPDivisor = 0 }, true},
		{"zero ttl", func(c *Config) { c.Rewards.StartTTL = 0 }, true},
		{"zero timeout", func(c *Config) { c.Telegram.Timeout = 0 }, true},
		{"zero burst", func(c *Config) { c.RateLimit.UserBurst = 0 }, true},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mongo" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdminConfig_IsAdmin(t *testing.T) {
	admins := AdminConfig{TelegramIDs: []int64{DefaultSuperAdminID, 42}}

	if !admins.IsAdmin(42) {
		t.Error("IsAdmin(42) = false, want true")
	}
	if admins.IsAdmin(7) {
		t.Error("IsAdmin(7) = true, want false")
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     int
	}{
		{"returns integer when valid", "200", 200},
		{"returns default when invalid", "invalid", 100},
		{"returns default when not set", "", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.envValue)
			if got := getEnvAsInt("TEST_INT", 100); got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{"returns duration when valid", "30s", 30 * time.Second},
		{"returns default when invalid", "invalid", 10 * time.Second},
		{"returns default when not set", "", 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			if got := getEnvAsDuration("TEST_DURATION", 10*time.Second); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt64List(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     []int64
	}{
		{"parses list", "10,20", []int64{10, 20}},
		{"skips malformed entries", "10, ,abc,30", []int64{10, 30}},
		{"falls back when nothing parses", "abc", []int64{99}},
		{"falls back when unset", "", []int64{99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_IDS", tt.envValue)
			got := getEnvAsInt64List("TEST_IDS", []int64{99})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("getEnvAsInt64List() = %v, want %v", got, tt.want)
			}
		})
	}
}
