package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig_EnvOnly(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_PATH", "/tmp/clouddrive.db")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", "8080")

	cfg, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, ожидалось 8080", cfg.Server.Port)
	}
	if cfg.Server.GRPCPort != "50051" {
		t.Errorf("Server.GRPCPort = %q, ожидалось значение по умолчанию", cfg.Server.GRPCPort)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("Storage.Backend = %q, ожидалось local", cfg.Storage.Backend)
	}
	if cfg.Archive.CompressionLevel != 6 {
		t.Errorf("Archive.CompressionLevel = %d, ожидалось 6", cfg.Archive.CompressionLevel)
	}
	if cfg.Archive.TempMaxAge != time.Hour {
		t.Errorf("Archive.TempMaxAge = %v, ожидалось 1h", cfg.Archive.TempMaxAge)
	}
	if cfg.Server.MaxUploadBytes != 100<<20 {
		t.Errorf("Server.MaxUploadBytes = %d", cfg.Server.MaxUploadBytes)
	}
}

func TestNewConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	content := `
Server:
  Port: "9000"
Database:
  Driver: postgres
  Host: db
  User: drive
  Password: pass
  Name: filemanager
Archive:
  CompressionLevel: 5
  TempMaxAge: 10m
Auth:
  JWTSecret: s3cr3t
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("не удалось записать конфиг: %v", err)
	}

	cfg, err := NewConfig(path)
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	if cfg.Server.Port != "9000" {
		t.Errorf("Server.Port = %q", cfg.Server.Port)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" {
		t.Errorf("ожидались значения по умолчанию для порта и sslmode: %+v", cfg.Database)
	}
	if cfg.Archive.CompressionLevel != 5 || cfg.Archive.TempMaxAge != 10*time.Minute {
		t.Errorf("Archive = %+v", cfg.Archive)
	}

	dsn := cfg.Database.GetDSN()
	if !strings.Contains(dsn, "dbname=filemanager") || !strings.Contains(dsn, "host=db") {
		t.Errorf("GetDSN = %q", dsn)
	}
	if got := cfg.Database.MigrateURL(); got != "postgres://drive:pass@db:5432/filemanager?sslmode=disable" {
		t.Errorf("MigrateURL = %q", got)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite3", Path: "x.db"},
			Storage:  StorageConfig{Backend: "local", BlobDir: "./uploads"},
			Archive:  ArchiveConfig{CompressionLevel: 6},
			Auth:     AuthConfig{JWTSecret: "k"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"валидная конфигурация", func(c *Config) {}, true},
		{"нет секрета", func(c *Config) { c.Auth.JWTSecret = "" }, false},
		{"неизвестный драйвер", func(c *Config) { c.Database.Driver = "oracle" }, false},
		{"postgres без хоста", func(c *Config) { c.Database.Driver = "postgres" }, false},
		{"s3 без бакета", func(c *Config) { c.Storage.Backend = "s3" }, false},
		{"максимальное сжатие вне диапазона", func(c *Config) { c.Archive.CompressionLevel = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("неожиданная ошибка: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("ожидалась ошибка валидации")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "debug", Format: "console"}); err != nil {
		t.Errorf("NewLogger(console): %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "verbose"}); err == nil {
		t.Error("ожидалась ошибка для неизвестного уровня")
	}
	if _, err := NewLogger(LogConfig{Level: "info", Format: "xml"}); err == nil {
		t.Error("ожидалась ошибка для неизвестного формата")
	}
}
