package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Storage  StorageConfig  `mapstructure:"Storage"`
	S3       S3Config       `mapstructure:"S3"`
	Archive  ArchiveConfig  `mapstructure:"Archive"`
	Auth     AuthConfig     `mapstructure:"Auth"`
	Log      LogConfig      `mapstructure:"Log"`
	Preview  PreviewConfig  `mapstructure:"Preview"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"Port"`
	GRPCPort        string        `mapstructure:"GRPCPort"`
	BaseURL         string        `mapstructure:"BaseURL"`
	RequestTimeout  time.Duration `mapstructure:"RequestTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"ShutdownTimeout"`
	MaxUploadBytes  int64         `mapstructure:"MaxUploadBytes"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"Driver"` // postgres | sqlite3
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
	Path     string `mapstructure:"Path"` // файл базы для sqlite3
}

type StorageConfig struct {
	Backend string `mapstructure:"Backend"` // local | s3
	BlobDir string `mapstructure:"BlobDir"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	Bucket          string `mapstructure:"Bucket"`
	Prefix          string `mapstructure:"Prefix"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
}

type ArchiveConfig struct {
	CompressionLevel int           `mapstructure:"CompressionLevel"`
	TempMaxAge       time.Duration `mapstructure:"TempMaxAge"`
	CleanupInterval  time.Duration `mapstructure:"CleanupInterval"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"JWTSecret"`
	Issuer    string `mapstructure:"Issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"Level"`
	Format string `mapstructure:"Format"` // json | console
}

type PreviewConfig struct {
	MaxSize   int           `mapstructure:"MaxSize"`
	Quality   int           `mapstructure:"Quality"`
	CacheSize int           `mapstructure:"CacheSize"`
	CacheTTL  time.Duration `mapstructure:"CacheTTL"`
}

var envBindings = map[string]string{
	"Server.Port":              "HTTP_PORT",
	"Server.GRPCPort":          "GRPC_PORT",
	"Server.BaseURL":           "BASE_URL",
	"Server.MaxUploadBytes":    "MAX_UPLOAD_BYTES",
	"Database.Driver":          "DATABASE_DRIVER",
	"Database.Host":            "DATABASE_HOST",
	"Database.Port":            "DATABASE_PORT",
	"Database.User":            "DATABASE_USER",
	"Database.Password":        "DATABASE_PASSWORD",
	"Database.Name":            "DATABASE_NAME",
	"Database.SSLMode":         "DATABASE_SSLMODE",
	"Database.Path":            "DATABASE_PATH",
	"Storage.Backend":          "STORAGE_BACKEND",
	"Storage.BlobDir":          "STORAGE_BLOB_DIR",
	"S3.Endpoint":              "S3_ENDPOINT",
	"S3.Region":                "S3_REGION",
	"S3.Bucket":                "S3_BUCKET",
	"S3.Prefix":                "S3_PREFIX",
	"S3.AccessKeyID":           "S3_ACCESS_KEY_ID",
	"S3.SecretAccessKey":       "S3_SECRET_ACCESS_KEY",
	"Archive.CompressionLevel": "ARCHIVE_COMPRESSION_LEVEL",
	"Archive.TempMaxAge":       "ARCHIVE_TEMP_MAX_AGE",
	"Auth.JWTSecret":           "AUTH_JWT_SECRET",
	"Auth.Issuer":              "AUTH_ISSUER",
	"Log.Level":                "LOG_LEVEL",
	"Log.Format":               "LOG_FORMAT",
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.RequestTimeout", 30*time.Minute)
	v.SetDefault("Server.ShutdownTimeout", 30*time.Second)
	v.SetDefault("Server.MaxUploadBytes", int64(100<<20))

	v.SetDefault("Database.Driver", "postgres")
	v.SetDefault("Database.Port", "5432")
	v.SetDefault("Database.SSLMode", "disable")

	v.SetDefault("Storage.Backend", "local")
	v.SetDefault("Storage.BlobDir", "./uploads")

	v.SetDefault("S3.Region", "us-east-1")

	v.SetDefault("Archive.CompressionLevel", 6)
	v.SetDefault("Archive.TempMaxAge", time.Hour)
	v.SetDefault("Archive.CleanupInterval", 15*time.Minute)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Format", "json")

	v.SetDefault("Preview.MaxSize", 1024)
	v.SetDefault("Preview.Quality", 85)
	v.SetDefault("Preview.CacheSize", 256)
	v.SetDefault("Preview.CacheTTL", 24*time.Hour)
}

// Validate проверяет, что все необходимые поля заполнены
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
		}
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite3")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.S3.Bucket == "" || c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3 storage requires bucket, access key and secret key")
		}
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	if c.Storage.BlobDir == "" {
		return fmt.Errorf("blob directory is required")
	}

	if c.Archive.CompressionLevel < 1 || c.Archive.CompressionLevel > 9 {
		return fmt.Errorf("archive compression level must be between 1 and 9, got %d", c.Archive.CompressionLevel)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret is required")
	}

	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite3" {
		return c.Path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// MigrateURL возвращает адрес базы в формате golang-migrate
func (c *DatabaseConfig) MigrateURL() string {
	if c.Driver == "sqlite3" {
		return "sqlite3://" + c.Path
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
