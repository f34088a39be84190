package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iudanet/draftkeeper/internal/client/api"
	"github.com/iudanet/draftkeeper/internal/client/draft"
	"github.com/iudanet/draftkeeper/internal/client/storage"
	"github.com/iudanet/draftkeeper/internal/client/storage/boltdb"
	"github.com/iudanet/draftkeeper/internal/client/storage/sqlite"
	"github.com/iudanet/draftkeeper/internal/client/sync"
	"github.com/iudanet/draftkeeper/internal/config"
	"github.com/iudanet/draftkeeper/internal/crypto"
	"github.com/iudanet/draftkeeper/internal/logging"
	"github.com/iudanet/draftkeeper/internal/models"
	"github.com/iudanet/draftkeeper/internal/validation"
)

// Служебные ключи хранилища. Они не содержат ':' и поэтому не видны как снапшоты.
// Значения хранятся открыто: они нужны до того, как известен ключ шифрования.
const (
	metaClientIDKey = "meta/client-id"
	metaSaltKey     = "meta/salt"
	metaKeyCheck    = "meta/key-check"
)

const keyCheckValue = "draftkeeper"

// ErrPassphraseRequired is returned when an encrypted store is opened without a passphrase
var ErrPassphraseRequired = errors.New("store is encrypted, passphrase required")

// withSession opens the local store for the duration of fn
func (c *Cli) withSession(fn func(ctx context.Context, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := c.open(ctx, cmd); err != nil {
			return err
		}
		defer func() {
			if err := c.close(); err != nil {
				c.logger.Error("failed to close database", "error", err)
			}
		}()

		return fn(ctx, args)
	}
}

func (c *Cli) open(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(c.viper)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logging.New(cfg.LogLevel, cmd.ErrOrStderr())

	raw, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	clientID, err := resolveClientID(ctx, raw, cfg.ClientID)
	if err != nil {
		_ = raw.Close()
		return err
	}

	c.adapter = raw
	if cfg.PassphraseFile != "" {
		encrypted, err := c.encrypt(ctx, raw, cfg)
		if err != nil {
			_ = raw.Close()
			return err
		}
		c.adapter = encrypted
	} else if err := requirePlain(ctx, raw); err != nil {
		_ = raw.Close()
		return fmt.Errorf("%w: use --passphrase-file for %s", err, cfg.StorageConfig().Namespace())
	}

	storeCfg := cfg.StorageConfig()
	storeCfg.ClientID = clientID

	c.store, err = draft.New[models.Record](c.adapter, storeCfg, draft.WithLogger(c.logger), draft.WithClock(c.now))
	if err != nil {
		_ = c.adapter.Close()
		return err
	}

	transport := api.NewTransport[models.Record](api.NewClient(cfg.ServerURL))
	c.service = sync.NewService(c.store, transport, c.logger)

	c.logger.Debug("Store opened",
		"backend", cfg.Backend,
		"namespace", storeCfg.Namespace(),
		"client_id", clientID,
		"encrypted", cfg.PassphraseFile != "")

	return nil
}

func (c *Cli) close() error {
	if c.adapter == nil {
		return nil
	}
	err := c.adapter.Close()
	c.adapter = nil
	c.store = nil
	c.service = nil
	return err
}

func openBackend(ctx context.Context, cfg config.AppConfig) (storage.Adapter, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := sqlite.New(ctx, cfg.StorageConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return s, nil
	default:
		s, err := boltdb.New(ctx, cfg.StorageConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return s, nil
	}
}

// resolveClientID returns the configured identity or the one persisted in
// the store, generating and persisting a new one on first use.
func resolveClientID(ctx context.Context, adapter storage.Adapter, configured string) (string, error) {
	if configured != "" {
		if err := validation.ValidateClientID(configured); err != nil {
			return "", err
		}
		return configured, nil
	}

	stored, err := adapter.Get(ctx, metaClientIDKey)
	switch {
	case err == nil && len(stored) > 0:
		return string(stored), nil
	case err != nil && !errors.Is(err, storage.ErrKeyNotFound):
		return "", fmt.Errorf("failed to read client id: %w", err)
	}

	clientID := uuid.NewString()
	if err := adapter.Set(ctx, metaClientIDKey, []byte(clientID)); err != nil {
		return "", fmt.Errorf("failed to save client id: %w", err)
	}

	return clientID, nil
}

// encrypt оборачивает хранилище шифрованием. Соль хранится рядом с данными,
// контрольное значение не дает неверному паролю "испортить" все записи.
func (c *Cli) encrypt(ctx context.Context, raw storage.Adapter, cfg config.AppConfig) (storage.Adapter, error) {
	passphrase, err := c.readPassphrase(cfg.PassphraseFile)
	if err != nil {
		return nil, err
	}

	salt, err := raw.Get(ctx, metaSaltKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		generated, genErr := crypto.GenerateSaltBase64()
		if genErr != nil {
			return nil, genErr
		}
		salt = []byte(generated)
		if err := raw.Set(ctx, metaSaltKey, salt); err != nil {
			return nil, fmt.Errorf("failed to save salt: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	key, err := crypto.DeriveStorageKey(passphrase, cfg.StorageConfig().Namespace(), string(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to derive storage key: %w", err)
	}

	encrypted, err := storage.NewEncrypted(raw, key)
	if err != nil {
		return nil, err
	}

	check, err := encrypted.Get(ctx, metaKeyCheck)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		if err := encrypted.Set(ctx, metaKeyCheck, []byte(keyCheckValue)); err != nil {
			return nil, fmt.Errorf("failed to save key check: %w", err)
		}
	case errors.Is(err, storage.ErrCorruptedValue) || (err == nil && string(check) != keyCheckValue):
		return nil, fmt.Errorf("wrong passphrase for %s", cfg.StorageConfig().Namespace())
	case err != nil:
		return nil, fmt.Errorf("failed to verify passphrase: %w", err)
	}

	return encrypted, nil
}

// requirePlain не дает открыть зашифрованное хранилище без пароля:
// запечатанные значения выглядели бы испорченными и удалялись бы при чтении.
func requirePlain(ctx context.Context, raw storage.Adapter) error {
	for _, key := range []string{metaSaltKey, metaKeyCheck} {
		_, err := raw.Get(ctx, key)
		switch {
		case err == nil:
			return ErrPassphraseRequired
		case !errors.Is(err, storage.ErrKeyNotFound):
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
	}
	return nil
}

// readPassphrase читает пароль из файла или, для "-", из терминала
func (c *Cli) readPassphrase(path string) (string, error) {
	if path == "-" {
		passphrase, err := c.io.ReadPassword("Passphrase: ")
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		if passphrase == "" {
			return "", fmt.Errorf("passphrase cannot be empty")
		}
		return passphrase, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase file: %w", err)
	}
	// Убираем trailing newline/whitespace
	passphrase := strings.TrimSpace(string(content))
	if passphrase == "" {
		return "", fmt.Errorf("passphrase file is empty")
	}

	return passphrase, nil
}
