package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/b0ase/cardlog/internal/config"
	"github.com/b0ase/cardlog/internal/daemon"
	"github.com/b0ase/cardlog/internal/logging"
)

var Version = "0.1.0"

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "cardlogd",
	Short:        "Card scan log server",
	Long:         "cardlogd records RFID/NFC card scans, serves the scan log API and live dashboard, and pushes new scans to connected clients.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath == "" {
			cfgPath = config.DefaultPath()
		}
		c, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		logging.Init(c.Log)

		if err := os.MkdirAll(c.DataDir, 0700); err != nil {
			return fmt.Errorf("create data dir %s: %w", c.DataDir, err)
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon (default)",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cardlogd", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to cardlog.yaml (default ~/.cardlog/cardlog.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Named("main")
	log.Infof("cardlogd v%s, data dir %s", Version, cfg.DataDir)

	d, err := daemon.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Block on signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received %s, shutting down...", sig)

	d.Stop()
	log.Info("Goodbye.")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
