package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wsoak/internal/banner"
	"wsoak/internal/cli"
	"wsoak/internal/config"
	"wsoak/internal/dummy"
	"wsoak/internal/events"
	"wsoak/internal/harness"
	"wsoak/internal/logging"
	"wsoak/internal/tui/app"
)

// Keys for settings that are not part of the test configuration.
const (
	keyMetricsAddr = "metrics_addr"
	keyStoreDir    = "store_dir"
	keyLogLevel    = "log_level"
	keyLogFile     = "log_file"
)

var (
	cfgFile string

	headless bool
	runFor   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "wsoak",
	Short: "wsoak - WebSocket device soak tester",
	Long: `
wsoak provisions simulated devices against an OTA endpoint, then keeps many
of them in long-lived WebSocket sessions, round after round, while sampling
the memory and CPU of the server process under test.

It supports two modes:
1. TUI Mode (Default): Interactive Terminal UI
2. Headless Mode (--headless): Console logging for CI and long soaks`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if headless {
			return runHeadless(cfg)
		}
		return runTUI(cfg)
	},
}

func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wsoak.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	// Test-configuration flags are persistent so `wsoak config` sees them too.
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.IntP("clients", "c", d.ClientCount, "Concurrent simulated devices")
	pf.IntP("duration", "d", d.SessionDurationSeconds, "Listen time per session in seconds")
	pf.IntP("requests", "r", d.RequestsPerRound, "Sessions per client per round")
	pf.Int("rest", d.RestSeconds, "Rest between rounds in seconds")
	pf.String("device-id", d.DeviceID, "Device-Id header and hello device id")
	pf.String("client-id", d.ClientID, "Client-Id header")
	pf.StringP("provision-url", "u", d.ProvisioningURL, "OTA provisioning endpoint")
	pf.IntP("port", "p", d.MonitoredPort, "TCP port of the server process to sample")

	f := rootCmd.Flags()
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.String("store-dir", "", "Directory for the round ledger (default is the temp dir)")
	f.String("log-file", "", "Also write the event log to this file")
	f.BoolVar(&headless, "headless", false, "Run without the TUI")
	f.DurationVar(&runFor, "run-for", 0, "Stop a headless run after this long (0 runs until interrupted)")

	persistent := map[string]string{
		config.KeyClients:      "clients",
		config.KeyDuration:     "duration",
		config.KeyRequests:     "requests",
		config.KeyRest:         "rest",
		config.KeyDeviceID:     "device-id",
		config.KeyClientID:     "client-id",
		config.KeyProvisionURL: "provision-url",
		config.KeyPort:         "port",
		keyLogLevel:            "log-level",
	}
	for key, flag := range persistent {
		viper.BindPFlag(key, pf.Lookup(flag))
	}
	local := map[string]string{
		keyMetricsAddr: "metrics-addr",
		keyStoreDir:    "store-dir",
		keyLogFile:     "log-file",
	}
	for key, flag := range local {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".wsoak")
		}
	}
	viper.SetEnvPrefix("WSOAK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			fmt.Fprintf(os.Stderr, "reading config %s: %v\n", cfgFile, err)
		}
	}
}

func newHarness(cfg config.TestConfiguration, logger *slog.Logger) *harness.Harness {
	return harness.New(harness.Options{
		Config:      cfg,
		MetricsAddr: viper.GetString(keyMetricsAddr),
		StoreDir:    viper.GetString(keyStoreDir),
		Logger:      logger,
	})
}

// openLogFile returns nil when no log file was requested.
func openLogFile() (*os.File, error) {
	path := viper.GetString(keyLogFile)
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// --- Runners ---

func runTUI(cfg config.TestConfiguration) error {
	level := logging.ParseLevel(viper.GetString(keyLogLevel))

	file, err := openLogFile()
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	// The terminal belongs to the TUI; logs go to the file or nowhere.
	var w io.Writer = io.Discard
	var extra []events.Sink
	if file != nil {
		defer file.Close()
		w = file
	}
	logger := logging.New(w, level)
	if file != nil {
		extra = append(extra, logging.ConsoleSink{Logger: logger})
	}

	h := newHarness(cfg, logger)
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, h, extra...); err != nil {
		return fmt.Errorf("running wsoak: %w", err)
	}
	return nil
}

func runHeadless(cfg config.TestConfiguration) error {
	level := logging.ParseLevel(viper.GetString(keyLogLevel))

	var w io.Writer = os.Stderr
	file, err := openLogFile()
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if file != nil {
		defer file.Close()
		w = io.MultiWriter(os.Stderr, file)
	}
	logger := logging.New(w, level)

	h := newHarness(cfg, logger)
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.Start(ctx, h, runFor, logger, os.Stdout)
}

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a mock device server (OTA + WebSocket) to soak against",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		interval, _ := cmd.Flags().GetDuration("interval")
		frames, _ := cmd.Flags().GetInt("frames")

		_, server := dummy.Start(dummy.ServerConfig{Port: port, Interval: interval, Frames: frames})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

// --- Config Subcommand ---
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved test configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		return config.WriteYAML(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	dc := dummy.DefaultConfig()
	dummyCmd.Flags().IntP("port", "p", dc.Port, "Port to run the mock device server on")
	dummyCmd.Flags().Duration("interval", dc.Interval, "Delay between streamed frames")
	dummyCmd.Flags().Int("frames", 0, "Frames per session before closing (0 streams until the client leaves)")
}
