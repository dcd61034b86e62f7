// Command kiosk runs the biometric check-in kiosk.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m3-muru/facial-rpi/internal/config"
	"github.com/m3-muru/facial-rpi/internal/faceproc"
	"github.com/m3-muru/facial-rpi/internal/logger"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1 // Watchdog shutdown or unexpected error
	exitStartup = 2 // Datastore unreachable at startup
)

type options struct {
	configPath    string
	envFile       string
	logLevel      string
	logFile       string
	logColor      bool
	simulate      bool
	webAddr       string
	broadcastAddr string
	noGreeting    bool
	attendance    string
	threshold     int
}

// exitError carries the process exit code out of RunE
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "kiosk",
		Short: "Biometric check-in kiosk",
		Long: `Kiosk authenticates or enrolls employees with a face sensor, streams a
live preview with detection overlays, and notifies display terminals of
check-in results over WebSocket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file with KIOSK_* overrides")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error, silent)")
	flags.StringVar(&opts.logFile, "log-file", "", "Rotating log file")
	flags.BoolVar(&opts.logColor, "log-color", true, "Enable colored log output")
	flags.BoolVar(&opts.simulate, "simulate", true, "Use the simulated biometric device and camera")
	flags.StringVar(&opts.webAddr, "web", "", "Web monitor address")
	flags.StringVar(&opts.broadcastAddr, "broadcast", "", "Display broadcast WebSocket address")
	flags.BoolVar(&opts.noGreeting, "no-greeting", false, "Skip the startup countdown")
	flags.StringVar(&opts.attendance, "attendance", "", "Attendance direction reported to displays (in or out)")
	flags.IntVar(&opts.threshold, "threshold", 0, "Minimum accepted match score")

	root.AddCommand(
		&cobra.Command{
			Use:     "auth",
			Aliases: []string{"authenticate"},
			Short:   "Run the kiosk in authentication mode",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, opts, faceproc.ModeAuthenticate)
			},
		},
		&cobra.Command{
			Use:     "enroll",
			Aliases: []string{"enrol"},
			Short:   "Run the kiosk in enrollment mode",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, opts, faceproc.ModeEnroll)
			},
		},
	)
	return root
}

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}

// loadConfig resolves defaults, file, environment and then flags
func loadConfig(cmd *cobra.Command, opts *options, mode faceproc.Mode) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, err
	}

	cfg.Face.Mode = mode.String()
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("log-color") {
		cfg.Log.Color = opts.logColor
	}
	if flags.Changed("simulate") {
		cfg.Device.Simulate = opts.simulate
	}
	if flags.Changed("web") {
		cfg.Web.Addr = opts.webAddr
	}
	if flags.Changed("broadcast") {
		cfg.Broadcast.Addr = opts.broadcastAddr
	}
	if opts.noGreeting {
		cfg.Face.Greeting = false
	}
	if flags.Changed("attendance") {
		cfg.Face.Attendance = opts.attendance
	}
	if flags.Changed("threshold") {
		cfg.Face.Threshold = opts.threshold
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(cmd *cobra.Command, opts *options, mode faceproc.Mode) error {
	cfg, err := loadConfig(cmd, opts, mode)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	closer, err := logger.Setup(logger.Options{
		Level:      level,
		UseColor:   cfg.Log.Color,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer closeQuietly(closer)

	logger.Info("Main", "Kiosk starting (mode: %s)", mode)
	logger.Info("Main", "Log level: %s", level)

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		var startup *faceproc.StartupError
		if errors.As(err, &startup) {
			logger.Error("Main", "%v", err)
			return &exitError{code: exitStartup, err: err}
		}
		return err
	}

	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Main", "Signal received")
	case code = <-app.ExitRequested():
		logger.Info("Main", "Exit requested (code %d)", code)
	}
	app.Shutdown()

	if code != exitOK {
		return &exitError{code: code, err: fmt.Errorf("kiosk stopped with status %d", code)}
	}
	return nil
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
