// Package cli is the done command line: the TUI by default, plus scripting
// subcommands that work on the same per-user store.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sadopc/done/internal/app"
	"github.com/sadopc/done/internal/config"
	"github.com/sadopc/done/internal/logging"
	"github.com/sadopc/done/internal/tasks"
	"github.com/sadopc/done/internal/tui"
)

// defaultUser is the account used when neither the config nor --user names
// one.
const defaultUser = "local"

type rootFlags struct {
	configPath string
	user       string
	dataDir    string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "done",
		Short: "done - a local-first task manager",
		Long: `done keeps your tasks, subtasks and projects in a local database and,
when a NATS server is configured, keeps them in sync across devices.

Run without arguments to open the terminal UI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, f)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (default ~/.config/done/config.yaml)")
	root.PersistentFlags().StringVar(&f.user, "user", "", "account to open")
	root.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "directory holding the databases")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newAddCmd(f),
		newListCmd(f),
		newDoneCmd(f),
		newRmCmd(f),
		newEditCmd(f),
		newSubCmd(f),
		newCommentCmd(f),
		newPinCmd(f),
		newProjectsCmd(f),
		newSettingsCmd(f),
		newExportCmd(f),
		newSyncCmd(f),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	buildVersion = version
	root := newRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

var buildVersion = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "done", buildVersion)
		},
	}
}

// session is everything a command needs to talk to the signed-in user's
// data.
type session struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	app      *app.App
	svc      *tasks.Service

	closers []func() error
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig(f *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.user != "" {
		cfg.User = f.user
	}
	if cfg.User == "" {
		cfg.User = defaultUser
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// openSession loads config, builds the logger and signs in. With logToFile
// the log goes to done.log in the data directory unless a file is
// configured, so it does not draw over the TUI.
func openSession(ctx context.Context, f *rootFlags, logToFile bool) (*session, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	if logToFile && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(cfg.DataDir, "done.log")
	}

	log, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:      cfg,
		log:      log,
		registry: prometheus.NewRegistry(),
		closers:  []func() error{closeLog},
	}

	a, cleanup, err := app.Bootstrap(cfg, s.registry, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.app = a
	s.closers = append(s.closers, func() error { cleanup(); return nil }, a.Close)

	if err := a.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.User, err)
	}
	svc, err := a.Service()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.svc = svc
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && s.log != nil {
			s.log.Warn("close", zap.Error(err))
		}
	}
	s.closers = nil
}

func runTUI(cmd *cobra.Command, f *rootFlags) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := openSession(ctx, f, true)
	if err != nil {
		return err
	}
	defer s.Close()

	if s.cfg.Metrics.Addr != "" {
		go func() {
			if err := serveMetrics(ctx, s.cfg.Metrics.Addr, s.registry, s.log); err != nil {
				s.log.Error("metrics server", zap.Error(err))
			}
		}()
	}

	p := tea.NewProgram(tui.NewApp(s.svc), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
