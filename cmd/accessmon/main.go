// Package main is the CLI entry point for accessmon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/access_mon/internal/api"
	"github.com/eliteGoblin/focusd/access_mon/internal/config"
	"github.com/eliteGoblin/focusd/access_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/infra"
	"github.com/eliteGoblin/focusd/access_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/access_mon/internal/policy"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "accessmon",
	Short: "Temporal access control for local accounts",
	Long: `accessmon locks local user accounts and blocks their network traffic
according to time-based rules. Rules can be protected by countdowns or
passwords so they cannot be loosened on impulse.

Operations are sent to the running daemon over its local HTTP API.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Install the binary and the systemd unit, then start the daemon",
	Long: `Copies the binary to its install location and installs a systemd unit
(system unit as root, user unit otherwise). Falls back to spawning a
detached daemon when systemd is unavailable.

Screen locks and firewall rules need root.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health and regulated accounts",
	RunE:  runStatus,
}

var execCmd = &cobra.Command{
	Use:   "exec <kind> [json|-]",
	Short: "Execute an operation on the daemon",
	Long: `Sends one operation to the daemon. Arguments are a JSON object given
inline or on stdin ("-"). Run 'accessmon kinds' for the list of kinds.

Example:
  accessmon exec create_user '{"username":"kid","password":"..."}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runExec,
}

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List operation kinds",
	Run:   runKinds,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List users and network enforcers with their current evaluation",
	RunE:  runList,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the systemd unit once nothing is protected or blocked",
	RunE:  runUninstall,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - run by systemd or by 'start' as a detached process
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	jsonOutput bool
	apiAddr    string
)

func init() {
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "Daemon API address (default from ACCESSMON_LISTEN_ADDR)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(kindsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

func loadConfig() (*infra.ExecModeConfig, *config.Config, error) {
	execMode := infra.DetectExecMode()
	cfg, err := config.New(execMode)
	if err != nil {
		return nil, nil, err
	}
	if apiAddr != "" {
		cfg.ListenAddr = apiAddr
	}
	return execMode, cfg, nil
}

func newClient() (*apiClient, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg.ListenAddr), nil
}

func runStart(cmd *cobra.Command, args []string) error {
	execMode, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Execution mode: %s\n", execMode.Mode)
	if !execMode.CanActuate() {
		fmt.Println("Warning: not running as root - accounts cannot be locked and traffic cannot be blocked")
	}

	currentExecPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Copy binary to appropriate location if not already there
	binaryPath := execMode.BinaryPath
	if currentExecPath != binaryPath {
		if err := os.MkdirAll(filepath.Dir(binaryPath), 0755); err != nil {
			fmt.Printf("Warning: Could not create binary directory: %v\n", err)
			binaryPath = currentExecPath
		} else if err := copyBinary(currentExecPath, binaryPath); err != nil {
			fmt.Printf("Warning: Could not copy binary to %s: %v\n", binaryPath, err)
			binaryPath = currentExecPath
		} else {
			fmt.Printf("Installed binary to %s\n", binaryPath)
		}
	}

	units := infra.NewSystemdManager(execMode, infra.NewCommandRunner(infra.DefaultCommandTimeout))
	switch {
	case !units.IsInstalled():
		if err := units.Install(binaryPath); err != nil {
			fmt.Printf("Warning: Could not install systemd unit: %v\n", err)
			fmt.Println("         (starting a detached daemon instead; it won't survive a reboot)")
			if err := daemon.StartDaemonWithPath(binaryPath); err != nil {
				return fmt.Errorf("failed to start daemon: %w", err)
			}
		} else {
			fmt.Printf("Installed and started %s\n", infra.UnitName)
		}
	case units.NeedsUpdate(binaryPath):
		if err := units.Update(binaryPath); err != nil {
			return fmt.Errorf("failed to update systemd unit: %w", err)
		}
		fmt.Printf("Updated %s\n", infra.UnitName)
	default:
		fmt.Printf("%s already installed\n", infra.UnitName)
	}

	fmt.Println("\n=== accessmon Started ===")
	fmt.Printf("Mode: %s\n", execMode.Mode)
	fmt.Printf("Binary: %s\n", binaryPath)
	fmt.Printf("Data: %s\n", execMode.DataDir)
	fmt.Println("\nRun 'accessmon status' to check the daemon.")
	fmt.Println("=========================")
	return nil
}

// copyBinary copies the binary file to destination using atomic write pattern.
// Writes to temp file first, syncs, chmods, then renames to avoid corruption.
func copyBinary(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".accessmon-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err = io.Copy(tmpFile, sourceFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err = tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err = os.Chmod(tmpPath, 0755); err != nil {
		return err
	}
	if err = os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	fmt.Println("\n=== accessmon Status ===")

	health, err := client.Health(cmd.Context())
	if err != nil {
		fmt.Println("Status: NOT RUNNING")
		fmt.Printf("        %v\n", err)
		fmt.Println("\nRun 'accessmon start' to enable regulation.")
		return nil
	}

	fmt.Printf("Status: %s (pid %d)\n", strings.ToUpper(health.Status), health.Daemon.PID)
	fmt.Printf("Started: %s\n", health.Daemon.StartedAt.Format(time.RFC3339))
	if !health.Daemon.LastHeartbeat.IsZero() {
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(health.Daemon.LastHeartbeat).Round(time.Second))
	}
	fmt.Printf("Passes: %d (actuations %d, failures %d)\n",
		health.Daemon.Passes, health.Daemon.Actuations, health.Daemon.Failures)
	if health.Daemon.LastError != "" {
		fmt.Printf("Last error: %s\n", health.Daemon.LastError)
	}

	users, err := client.Users(cmd.Context())
	if err != nil {
		return err
	}
	enforcers, err := client.Enforcers(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("\nUsers:")
	for _, u := range users {
		fmt.Printf("  - %s: %s (%d policies)\n", u.Username, u.BlockState, len(u.Policies))
	}
	fmt.Println("Network enforcers:")
	for _, e := range enforcers {
		fmt.Printf("  - uid %d: %s (%d rules)\n", e.OSUserID, e.BlockState, len(e.Rules))
	}
	fmt.Println("========================")
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	kind := args[0]
	var body []byte
	switch {
	case len(args) == 1:
		body = []byte("{}")
	case args[1] == "-":
		var err error
		if body, err = io.ReadAll(cmd.InOrStdin()); err != nil {
			return fmt.Errorf("failed to read arguments: %w", err)
		}
	default:
		body = []byte(args[1])
	}

	// Validate locally so typos never reach the daemon.
	if _, err := policy.NewRegistry().Decode(kind, body); err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	resp, err := client.Execute(cmd.Context(), kind, body)
	if err != nil {
		return err
	}

	if resp.CreatedID != "" {
		fmt.Printf("%s: %s (id %s)\n", resp.Kind, resp.Outcome, resp.CreatedID)
	} else {
		fmt.Printf("%s: %s\n", resp.Kind, resp.Outcome)
	}
	if !resp.Outcome.IsSuccess() {
		return fmt.Errorf("operation rejected: %s", resp.Outcome)
	}
	return nil
}

func runKinds(cmd *cobra.Command, args []string) {
	for _, kind := range policy.NewRegistry().List() {
		fmt.Println(kind)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	users, err := client.Users(cmd.Context())
	if err != nil {
		return err
	}
	enforcers, err := client.Enforcers(cmd.Context())
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{"users": users, "enforcers": enforcers}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	execMode, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := newAPIClient(cfg.ListenAddr)
	users, err := client.Users(cmd.Context())
	if err != nil {
		return fmt.Errorf("daemon must be running to check protection: %w", err)
	}
	enforcers, err := client.Enforcers(cmd.Context())
	if err != nil {
		return err
	}
	if reason := uninstallBlocker(users, enforcers); reason != "" {
		return fmt.Errorf("refusing to uninstall: %s", reason)
	}

	units := infra.NewSystemdManager(execMode, infra.NewCommandRunner(infra.DefaultCommandTimeout))
	if err := units.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall systemd unit: %w", err)
	}
	fmt.Printf("Removed %s. Data left in %s\n", infra.UnitName, cfg.DataDir)
	return nil
}

// uninstallBlocker names the first account that keeps the daemon installed:
// anything blocked now or protected against loosening.
func uninstallBlocker(users []usecase.UserView, enforcers []usecase.EnforcerView) string {
	for _, u := range users {
		if u.Action == domain.ActionBlock {
			return fmt.Sprintf("user %s is blocked", u.Username)
		}
		for _, p := range u.Policies {
			if p.Protected {
				return fmt.Sprintf("policy %q of %s is protected", p.Name, u.Username)
			}
		}
	}
	for _, e := range enforcers {
		if e.Action == domain.ActionBlock {
			return fmt.Sprintf("traffic of uid %d is blocked", e.OSUserID)
		}
		if e.Protected {
			return fmt.Sprintf("enforcer of uid %d is protected", e.OSUserID)
		}
	}
	return ""
}

func runDaemon(cmd *cobra.Command, args []string) error {
	execMode, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	// Initialize infrastructure
	store, err := infra.OpenStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	runner := infra.NewCommandRunner(cfg.CommandTimeout)
	actuator := infra.NewSystemActuator(
		infra.NewFirewallManager(runner, logger),
		infra.NewAccountManager(runner, infra.NewProcessManager(), logger),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := usecase.NewService(
		store,
		actuator,
		infra.SystemClock{},
		infra.NewPasswordGenerator(cfg.PasswordLength),
		cfg.ServiceConfig(),
		logger,
	).WithRecorder(metrics.NewRecorder(reg))

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := service.Load(ctx); err != nil {
		logger.Error("failed to load state", zap.Error(err))
		return err
	}

	status := daemon.NewStatusHandle(os.Getpid())
	regulator := daemon.NewRegulator(
		cfg.RegulatorConfig(),
		service,
		daemon.NewScheduler(logger),
		status,
		logger,
	)
	service.Subscribe(regulator)

	// Only guard the unit when we were started from it.
	units := infra.NewSystemdManager(execMode, runner)
	if units.IsInstalled() {
		regulator.WithServiceManager(units, execMode.BinaryPath)
	}

	handler := api.NewHandler(service, policy.NewRegistry(), status, logger)
	server := api.NewServer(cfg.ListenAddr, api.NewRouter(handler, reg, logger), logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Run(ctx) }()
	regulatorErr := make(chan error, 1)
	go func() { regulatorErr <- regulator.Run(ctx) }()

	// Whichever side stops first takes the other down with it.
	var srvErr, regErr error
	select {
	case srvErr = <-serverErr:
		cancel()
		regErr = <-regulatorErr
	case regErr = <-regulatorErr:
		cancel()
		srvErr = <-serverErr
	}

	if srvErr != nil {
		logger.Error("HTTP API stopped", zap.Error(srvErr))
		return srvErr
	}
	if regErr != nil && !errors.Is(regErr, context.Canceled) {
		logger.Error("regulator stopped", zap.Error(regErr))
		return regErr
	}
	logger.Info("daemon stopped")
	return nil
}

func createLogger(cfg *config.Config) *zap.Logger {
	level, _ := cfg.Level()

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{cfg.LogPath}
	zapConfig.ErrorOutputPaths = []string{cfg.LogPath}
	zapConfig.EncoderConfig.TimeKey = "time"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0700); err == nil {
		if logger, err := zapConfig.Build(); err == nil {
			return logger
		}
	}
	// Fallback to stderr if file logging fails
	logger, _ := zap.NewProduction()
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("accessmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
