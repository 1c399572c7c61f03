// Package cli implements the cadence command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/task-cadence/internal/model"
	"github.com/nhle/task-cadence/internal/service"
	"github.com/nhle/task-cadence/internal/store"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// app carries everything a command needs once configuration is loaded.
type app struct {
	configPath string
	dbPath     string

	cfg      *model.AppConfig
	logger   *slog.Logger
	store    *store.SQLiteStore
	svc      *service.TaskService
	identity service.Identity
}

// NewRootCommand builds the command tree. Each call returns an independent
// tree, which keeps tests isolated.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cadence",
		Short: "Recurring tasks and a ranked task list",
		Long: `cadence keeps a ranked task list and turns recurrence templates into
dated task instances once a day.

Tasks are shown in buckets: daily, weekly, monthly, yearly and custom
instances first, then regular tasks. Within a bucket the order is the
one you set with 'cadence tasks move'.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.open,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", model.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides database.path)")

	root.AddCommand(
		newVersionCommand(),
		newConfigCommand(a),
		newUsersCommand(a),
		newJournalsCommand(a),
		newTasksCommand(a),
		newTemplatesCommand(a),
		newMaterializeCommand(a),
		newServeCommand(a),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No store needed.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cadence %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// loadConfig reads configuration and builds the logger, without touching
// the database.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := model.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// open loads configuration, opens the store and wires the service.
func (a *app) open(cmd *cobra.Command, args []string) error {
	if err := a.loadConfig(cmd); err != nil {
		return err
	}

	path := a.cfg.Database.Path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	a.store = s
	a.svc = service.New(s, s, a.logger,
		service.WithMaxDepth(a.cfg.Tasks.MaxDepth),
		service.WithConcurrency(a.cfg.Scheduler.Concurrency),
	)
	a.identity = service.StaticIdentity{Users: s, UserID: a.cfg.Identity.UserID}

	a.logger.Debug("store opened", "path", path)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// currentUser resolves the configured identity to a user id.
func (a *app) currentUser(ctx context.Context) (int64, error) {
	u, err := a.identity.CurrentUser(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving current user (set identity.user_id or %s_IDENTITY_USER_ID): %w",
			model.EnvPrefix, err)
	}
	return u.ID, nil
}
