package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/iudanet/draftkeeper/internal/client/storage"
)

const (
	envPrefix        = "DRAFTKEEPER"
	defaultBackend   = BackendBolt
	defaultDBPath    = "draftkeeper.db"
	defaultStoreName = "drafts"
	defaultServerURL = "http://localhost:8080"
	defaultLogLevel  = "info"
)

// Поддерживаемые локальные хранилища
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
)

// AppConfig captures runtime configuration of the draft client.
type AppConfig struct {
	Backend        string
	DBPath         string
	StoreName      string
	ClientID       string // пусто - идентификатор генерируется и сохраняется в хранилище
	ServerURL      string
	LogLevel       string
	PassphraseFile string // пусто - значения хранятся без шифрования
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("storage.backend", defaultBackend)
	configViper.SetDefault("storage.db", defaultDBPath)
	configViper.SetDefault("storage.store", defaultStoreName)
	configViper.SetDefault("client.id", "")
	configViper.SetDefault("server.url", defaultServerURL)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("crypto.passphrase_file", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Backend:        strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
		DBPath:         configViper.GetString("storage.db"),
		StoreName:      configViper.GetString("storage.store"),
		ClientID:       strings.TrimSpace(configViper.GetString("client.id")),
		ServerURL:      strings.TrimRight(configViper.GetString("server.url"), "/"),
		LogLevel:       configViper.GetString("log.level"),
		PassphraseFile: configViper.GetString("crypto.passphrase_file"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// StorageConfig returns the namespace of the local store. ClientID may
// still be empty at this point.
func (c AppConfig) StorageConfig() storage.Config {
	return storage.Config{
		DBName:    c.DBPath,
		StoreName: c.StoreName,
		ClientID:  c.ClientID,
	}
}

func (c AppConfig) validate() error {
	switch c.Backend {
	case BackendBolt, BackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendBolt, BackendSQLite, c.Backend)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("storage.db is required")
	}
	if strings.TrimSpace(c.StoreName) == "" {
		return fmt.Errorf("storage.store is required")
	}
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server.url is required")
	}
	return nil
}
