package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/b0ase/cardlog/internal/client"
	"github.com/b0ase/cardlog/internal/config"
	"github.com/b0ase/cardlog/internal/dashboard"
	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/rules"
	"github.com/b0ase/cardlog/internal/tui"
)

var Version = "0.1.0"

var (
	cfgPath      string
	serverURL    string
	notifyFilter string
	historyLimit int
	maxRows      int
)

var rootCmd = &cobra.Command{
	Use:          "cardlog-watch",
	Short:        "Live card scan dashboard in the terminal",
	Version:      Version,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", "", "path to cardlog.yaml (default ~/.cardlog/cardlog.yaml)")
	f.StringVarP(&serverURL, "server", "s", "", "cardlogd base URL (default dashboard.server_url)")
	f.StringVarP(&notifyFilter, "filter", "f", "", `only notify for scans matching this expression, e.g. 'user != "Unknown"'`)
	f.IntVar(&historyLimit, "history", 0, "records to load at startup (default dashboard.history_limit)")
	f.IntVar(&maxRows, "rows", 0, "visible table rows (default dashboard.max_rows)")
}

func run(cmd *cobra.Command, args []string) error {
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	applyFlags(cmd, cfg)

	// the terminal belongs to the UI, so logs go to a file
	if cfg.Log.Path == "" {
		cfg.Log.Path = filepath.Join(cfg.DataDir, "logs", "cardlog-watch.log")
	}
	logging.Init(cfg.Log)
	defer logging.Sync()

	filter, err := rules.Compile(cfg.Dashboard.NotifyFilter)
	if err != nil {
		return err
	}
	live, err := client.NewLiveClient(cfg.Dashboard.ServerURL)
	if err != nil {
		return err
	}
	history := client.NewHistoryClient(cfg.Dashboard.ServerURL, nil)

	model := tui.NewModel(cfg.Dashboard.ServerURL)
	program := tea.NewProgram(model, tea.WithAltScreen())

	opts := dashboard.Options{
		MaxRows:       cfg.Dashboard.MaxRows,
		HistoryLimit:  cfg.Dashboard.HistoryLimit,
		ToastDuration: cfg.Dashboard.ToastDuration,
	}
	if filter != nil {
		opts.Filter = filter
	}
	ctrl := dashboard.New(tui.NewView(program), history, live, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := ctrl.Run(ctx); err != nil {
			logging.L().Errorf("Dashboard stopped: %v", err)
		}
	}()

	_, err = program.Run()
	return err
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("server") {
		cfg.Dashboard.ServerURL = serverURL
	}
	if f.Changed("filter") {
		cfg.Dashboard.NotifyFilter = notifyFilter
	}
	if f.Changed("history") {
		cfg.Dashboard.HistoryLimit = historyLimit
	}
	if f.Changed("rows") {
		cfg.Dashboard.MaxRows = maxRows
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
