// Package cli implements the xgate command line tool.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/xgate/xgate-go"
)

type options struct {
	configPath  string
	baseURL     string
	logLevel    string
	logFormat   string
	maxAttempts int

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

// NewRootCommand builds the xgate command tree. Results are written to out
// and logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	o := &options{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "xgate",
		Short:         "XGATE API client",
		Long:          `xgate sends requests to the XGATE payments API with retries and rate limit handling, and explains the errors it gets back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return o.setupLogger()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "config file (default: XGATE_* environment variables)")
	flags.StringVar(&o.baseURL, "base-url", "", "API base URL, overrides the config")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&o.logFormat, "log-format", "text", "log format: text or json")
	flags.IntVar(&o.maxAttempts, "max-attempts", 0, "maximum attempts per request, overrides the config")

	cmd.AddCommand(newRequestCommand(o), newClassifyCommand(o))
	return cmd
}

func (o *options) setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", o.logLevel)
	}

	var handler slog.Handler
	switch strings.ToLower(o.logFormat) {
	case "json":
		handler = slog.NewJSONHandler(o.errOut, &slog.HandlerOptions{Level: level})
	case "text", "":
		handler = tint.NewHandler(o.errOut, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format %q", o.logFormat)
	}

	o.logger = slog.New(handler)
	return nil
}

func (o *options) loadConfig() (*xgate.Config, error) {
	var (
		cfg *xgate.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = xgate.LoadConfig(o.configPath)
	} else {
		cfg, err = xgate.ConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.maxAttempts > 0 {
		cfg.Retry.MaxAttempts = &o.maxAttempts
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
