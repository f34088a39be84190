package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/draftkeeper/internal/client/draft"
	"github.com/iudanet/draftkeeper/internal/client/iocli"
	"github.com/iudanet/draftkeeper/internal/client/storage"
	"github.com/iudanet/draftkeeper/internal/client/sync"
	"github.com/iudanet/draftkeeper/internal/config"
	"github.com/iudanet/draftkeeper/internal/models"
)

// BuildInfo is the version information injected at build time
type BuildInfo struct {
	Version   string
	BuildDate string
	GitCommit string
}

// Cli holds the state of one command invocation. The local store is opened
// right before a command runs and closed when it returns.
type Cli struct {
	io      iocli.IO
	viper   *viper.Viper
	logger  *slog.Logger
	adapter storage.Adapter
	store   *draft.Store[models.Record]
	service *sync.Service[models.Record]
	now     func() time.Time
	build   BuildInfo
	cfgFile string
	cfg     config.AppConfig
}

// New creates a Cli writing to io
func New(io iocli.IO, build BuildInfo) *Cli {
	return &Cli{
		io:    io,
		viper: config.NewViper(),
		now:   time.Now,
		build: build,
	}
}

// NewRootCommand builds the command tree
func (c *Cli) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "draftkeeper",
		Short:         "Offline drafts with three-way sync",
		Long:          "draftkeeper keeps entity drafts in a local store while offline and reconciles them with the server copy once it is reachable.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}
	root.SetOut(c.io)

	c.setupFlags(root)

	root.AddCommand(
		c.newSaveCommand(),
		c.newGetCommand(),
		c.newListCommand(),
		c.newWriteCommand(),
		c.newMarkCommand("mark-clean", false),
		c.newMarkCommand("mark-dirty", true),
		c.newRemoveCommand(),
		c.newClearCommand(),
		c.newPurgeCommand(),
		c.newReconcileCommand(),
		c.newPushCommand(),
		c.newPullCommand(),
		c.newStatusCommand(),
		c.newVersionCommand(),
	)

	return root
}

func (c *Cli) setupFlags(cmd *cobra.Command) {
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()

	flags.StringVar(&c.cfgFile, "config", "", "Path to configuration file")
	flags.String("db", defaults.GetString("storage.db"), "Path to local database")
	flags.String("store", defaults.GetString("storage.store"), "Store (bucket) name inside the database")
	flags.String("backend", defaults.GetString("storage.backend"), "Local storage backend (bolt, sqlite)")
	flags.String("client-id", "", "Client identity stamped on local writes (generated when empty)")
	flags.String("server", defaults.GetString("server.url"), "Server URL")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("passphrase-file", "", "Encrypt stored values with the passphrase in this file ('-' to prompt)")

	c.bindFlag(cmd, "storage.db", "db")
	c.bindFlag(cmd, "storage.store", "store")
	c.bindFlag(cmd, "storage.backend", "backend")
	c.bindFlag(cmd, "client.id", "client-id")
	c.bindFlag(cmd, "server.url", "server")
	c.bindFlag(cmd, "log.level", "log-level")
	c.bindFlag(cmd, "crypto.passphrase_file", "passphrase-file")
}

func (c *Cli) bindFlag(cmd *cobra.Command, key, flag string) {
	if err := c.viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// initConfig читает файл конфигурации; отсутствие файла по умолчанию не ошибка
func (c *Cli) initConfig() error {
	if c.cfgFile != "" {
		c.viper.SetConfigFile(c.cfgFile)
	} else {
		c.viper.SetConfigName("draftkeeper")
		c.viper.AddConfigPath(".")
	}

	if err := c.viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if c.cfgFile == "" && errors.As(err, &configNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *Cli) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			c.io.Println("draftkeeper")
			c.io.Printf("Version:    %s\n", c.build.Version)
			c.io.Printf("Build Date: %s\n", c.build.BuildDate)
			c.io.Printf("Git Commit: %s\n", c.build.GitCommit)
		},
	}
}
