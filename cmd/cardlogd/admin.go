package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/b0ase/cardlog/internal/backup"
	"github.com/b0ase/cardlog/internal/db"
	"github.com/b0ase/cardlog/internal/mcpserver"
)

var (
	backupName  string
	pruneDays   int
	cleanupDays int
	jsonOutput  bool
)

// openStore opens the configured database and a backup manager for the
// admin subcommands.
func openStore() (*backup.Manager, error) {
	if err := db.Open(cfg.Database.Driver, cfg.DBPath()); err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	mgr, err := backup.NewManager(cfg.BackupDir(), cfg.Database.Driver, nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	return mgr, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, restore, list and prune database backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		path, err := mgr.Create(backupName)
		if err != nil {
			return err
		}
		fmt.Println("Backup created:", path)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Replace the database with a backup (stop cardlogd first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		previous, err := mgr.Restore(args[0])
		if err != nil {
			return err
		}
		fmt.Println("Database restored from", args[0])
		fmt.Println("Previous database saved to", previous)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := backup.NewManager(cfg.BackupDir(), cfg.Database.Driver, nil)
		if err != nil {
			return err
		}
		files, err := mgr.List()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(files)
		}
		if len(files) == 0 {
			fmt.Println("No backups in", mgr.Dir())
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%d\t%s\n", f.Name, f.Size, f.Modified.Format(time.DateTime))
		}
		return w.Flush()
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := pruneDays
		if days <= 0 {
			days = cfg.Database.BackupRetentionDays
		}
		mgr, err := backup.NewManager(cfg.BackupDir(), cfg.Database.Driver, nil)
		if err != nil {
			return err
		}
		n, err := mgr.Prune(days)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d backups older than %d days\n", n, days)
		return nil
	},
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and maintain the scan database",
}

var dbInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		info, err := mgr.Info()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(info)
		}
		fmt.Printf("Database:  %s\n", info.DatabasePath)
		fmt.Printf("Size:      %.2f MB (%d bytes)\n", info.SizeMB, info.SizeBytes)
		fmt.Printf("Tables:    %v\n", info.Tables)
		fmt.Printf("Logs:      %d\n", info.TotalLogs)
		if info.OldestLog != "" {
			fmt.Printf("Range:     %s .. %s\n", info.OldestLog, info.NewestLog)
		}
		fmt.Printf("Backups:   %d\n", info.BackupCount)
		if info.LastBackup != nil {
			fmt.Printf("Last:      %s\n", info.LastBackup.Format(time.DateTime))
		}
		return nil
	},
}

var dbOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run ANALYZE, VACUUM and REINDEX",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := mgr.Optimize()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Optimized: %d -> %d bytes (saved %.2f MB)\n", res.InitialSize, res.FinalSize, res.SavedMB)
		return nil
	},
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete logs older than --days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cleanupDays
		if days <= 0 {
			days = cfg.Database.CleanupDays
		}
		if days < 1 {
			return fmt.Errorf("days to keep must be at least 1")
		}
		if _, err := openStore(); err != nil {
			return err
		}
		defer db.Close()

		n, err := db.CleanupOlderThan(time.Now().AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d logs older than %d days\n", n, days)
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return mcpserver.New(Version, mgr, nil).Run(ctx)
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupName, "name", "", "backup file name (default cardlog_backup_<timestamp>.db)")
	backupPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "keep backups newer than this many days (default database.backup_retention_days)")
	dbCleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "keep logs newer than this many days (default database.cleanup_days)")
	backupListCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	dbInfoCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	dbOptimizeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd, backupListCmd, backupPruneCmd)
	dbCmd.AddCommand(dbInfoCmd, dbOptimizeCmd, dbCleanupCmd)
}
