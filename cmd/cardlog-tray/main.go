package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/getlantern/systray"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/b0ase/cardlog/internal/client"
	"github.com/b0ase/cardlog/internal/config"
	"github.com/b0ase/cardlog/internal/dashboard"
	"github.com/b0ase/cardlog/internal/logging"
	"github.com/b0ase/cardlog/internal/model"
	"github.com/b0ase/cardlog/internal/rules"
)

var Version = "0.1.0"

// menuRows is how many of the newest scans the menu lists.
const menuRows = 10

type trayApp struct {
	mu         sync.Mutex
	daemonCmd  *exec.Cmd
	ownsDaemon bool
	configPath string
	cfg        *config.Config
	history    *client.HistoryClient
	cancel     context.CancelFunc
	log        *zap.SugaredLogger

	// Header
	mTitle *systray.MenuItem

	// Counters
	mTotal *systray.MenuItem
	mUsers *systray.MenuItem
	mToday *systray.MenuItem

	// Recent scans
	mScansHeader *systray.MenuItem
	mRows        []*systray.MenuItem

	// Actions
	mDashboard *systray.MenuItem
	mQuit      *systray.MenuItem
}

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "cardlog-tray",
	Short:        "Card scan counters and notifications in the system tray",
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath == "" {
			cfgPath = config.DefaultPath()
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		logging.Init(cfg.Log)
		defer logging.Sync()

		app := &trayApp{
			configPath: cfgPath,
			cfg:        cfg,
			history:    client.NewHistoryClient(cfg.Dashboard.ServerURL, nil),
			log:        logging.Named("tray"),
		}
		systray.Run(app.onReady, app.onExit)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to cardlog.yaml (default ~/.cardlog/cardlog.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *trayApp) onReady() {
	systray.SetIcon(iconData())
	systray.SetTooltip("CardLog v" + Version)

	a.mTitle = systray.AddMenuItem("CardLog v"+Version, "")
	a.mTitle.Disable()

	systray.AddSeparator()

	a.mTotal = systray.AddMenuItem("     Total Scans: --", "")
	a.mTotal.Disable()
	a.mUsers = systray.AddMenuItem("     Unique Users: --", "")
	a.mUsers.Disable()
	a.mToday = systray.AddMenuItem("     Today's Scans: --", "")
	a.mToday.Disable()

	systray.AddSeparator()

	a.mScansHeader = systray.AddMenuItem("RECENT SCANS", "")
	a.mScansHeader.Disable()
	for i := 0; i < menuRows; i++ {
		item := systray.AddMenuItem("     --", "")
		item.Disable()
		a.mRows = append(a.mRows, item)
	}

	systray.AddSeparator()

	a.mDashboard = systray.AddMenuItem("Open Dashboard", "Open the CardLog dashboard in a browser")

	systray.AddSeparator()

	a.mQuit = systray.AddMenuItem("Quit CardLog", "Stop daemon and quit")

	// Start daemon if not already running
	if !a.isDaemonRunning() {
		a.startDaemon()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.runDashboard(ctx)
	go a.handleClicks()
	go a.waitSignal()
}

func (a *trayApp) onExit() {
	if a.cancel != nil {
		a.cancel()
	}
	a.stopDaemon()
}

func (a *trayApp) runDashboard(ctx context.Context) {
	live, err := client.NewLiveClient(a.cfg.Dashboard.ServerURL)
	if err != nil {
		a.log.Errorf("Live feed unavailable: %v", err)
		return
	}
	opts := dashboard.Options{
		MaxRows:       a.cfg.Dashboard.MaxRows,
		HistoryLimit:  a.cfg.Dashboard.HistoryLimit,
		ToastDuration: a.cfg.Dashboard.ToastDuration,
	}
	filter, err := rules.Compile(a.cfg.Dashboard.NotifyFilter)
	if err != nil {
		a.log.Warnf("Ignoring notify filter: %v", err)
	} else if filter != nil {
		opts.Filter = filter
	}

	ctrl := dashboard.New(a, a.history, live, opts)
	if err := ctrl.Run(ctx); err != nil {
		a.log.Errorf("Dashboard stopped: %v", err)
	}
}

// --- dashboard.View ---

func (a *trayApp) RenderCounters(c dashboard.Counters) {
	a.mTotal.SetTitle(fmt.Sprintf("     Total Scans: %d", c.TotalScans))
	a.mUsers.SetTitle(fmt.Sprintf("     Unique Users: %d", c.UniqueUsers))
	a.mToday.SetTitle(fmt.Sprintf("     Today's Scans: %d", c.TodayScans))
	systray.SetTooltip(fmt.Sprintf("CardLog - %d scans | %d today", c.TotalScans, c.TodayScans))
}

func (a *trayApp) RenderRows(rows []model.LogRecord) {
	for i, item := range a.mRows {
		if i < len(rows) {
			item.SetTitle("     " + formatRow(rows[i]))
		} else {
			item.SetTitle("     --")
		}
	}
}

func (a *trayApp) ShowNotification(msg string) {
	systray.SetTitle(msg)
}

func (a *trayApp) HideNotification() {
	systray.SetTitle("")
}

func formatRow(r model.LogRecord) string {
	ts := r.Time
	if t, ok := model.ParseTime(r.Time, nil); ok {
		ts = t.Format("Jan 2 15:04:05")
	}
	return fmt.Sprintf("%s  %s  %s", ts, r.UID, r.User)
}

// --- daemon lifecycle ---

func (a *trayApp) isDaemonRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return a.history.Healthy(ctx)
}

func (a *trayApp) startDaemon() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.daemonCmd != nil {
		return
	}

	binaryPath := "cardlogd"
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "cardlogd")
		if _, err := os.Stat(candidate); err == nil {
			binaryPath = candidate
		}
	}

	a.daemonCmd = exec.Command(binaryPath, "serve", "--config", a.configPath)
	a.daemonCmd.Stdout = os.Stdout
	a.daemonCmd.Stderr = os.Stderr
	a.daemonCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := a.daemonCmd.Start(); err != nil {
		a.log.Errorf("Failed to start daemon: %v", err)
		a.daemonCmd = nil
		return
	}

	a.ownsDaemon = true
	a.log.Infof("Started daemon (PID %d)", a.daemonCmd.Process.Pid)

	cmd := a.daemonCmd
	go func() {
		if err := cmd.Wait(); err != nil {
			a.log.Warnf("Daemon exited: %v", err)
		}
		a.mu.Lock()
		if a.daemonCmd == cmd {
			a.daemonCmd = nil
			a.ownsDaemon = false
		}
		a.mu.Unlock()
	}()

	for i := 0; i < 30; i++ {
		time.Sleep(500 * time.Millisecond)
		if a.isDaemonRunning() {
			a.log.Info("Daemon is ready")
			return
		}
	}
	a.log.Warn("Daemon did not become ready within 15s")
}

func (a *trayApp) stopDaemon() {
	a.mu.Lock()
	cmd := a.daemonCmd
	owns := a.ownsDaemon
	a.mu.Unlock()

	if cmd == nil || !owns {
		return
	}

	a.log.Info("Stopping daemon...")
	cmd.Process.Signal(syscall.SIGTERM)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		exited := a.daemonCmd != cmd
		a.mu.Unlock()
		if exited {
			a.log.Info("Daemon stopped cleanly")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	a.log.Warn("Daemon did not stop, sending SIGKILL")
	cmd.Process.Kill()
}

func (a *trayApp) waitSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	systray.Quit()
}

func (a *trayApp) handleClicks() {
	for {
		select {
		case <-a.mDashboard.ClickedCh:
			openBrowser(a.cfg.Dashboard.ServerURL)

		case <-a.mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		cmd = exec.Command("open", url)
	}
	cmd.Start()
}
