// Package cli implements the cobra-based command line of portfind.
//
// The root command searches for a free port and prints it; the check
// subcommand probes individual ports. Settings are resolved with viper in
// the order flag > PORTFIND_* environment variable > config file > default.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shinji-kodama/portfind/internal/config"
	"github.com/shinji-kodama/portfind/internal/logger"
	"github.com/shinji-kodama/portfind/internal/model"
	"github.com/shinji-kodama/portfind/internal/port"
)

// envPrefix prefixes every environment variable portfind reads, e.g.
// PORTFIND_START or PORTFIND_EXCLUDE_DOCKER.
const envPrefix = "PORTFIND"

// Global flag variables shared across all subcommands.
var (
	// jsonOutput controls whether results and errors are printed as JSON.
	jsonOutput bool

	// verbose enables debug logs on stderr.
	verbose bool

	// silent disables all logs, including retry warnings.
	silent bool

	// logFile redirects logs from stderr to a file.
	logFile string

	// logFileHandle is the open --log-file, closed by closeLogFile.
	logFileHandle *os.File
)

// version, commit, and date are set at build time via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates the portfind command with its subcommands.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "portfind",
		Short: "Find a free local port in a range",
		Long: `portfind probes every port of a range by binding and releasing it, and
prints the lowest port that could be bound. When the whole range is busy it
waits and tries again, up to a retry budget.

The port is not reserved: bind it quickly, another process may take it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.GlobalSetLevel(verbose, silent)

			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return model.WrapCLIError(model.ExitInvalidInput, "failed to open log file", err)
				}
				logFileHandle = f
				logger.GlobalSetLogFile(f)
			}

			return nil
		},

		// Only runs after a successful RunE; Execute closes the file on the
		// error path.
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeLogFile()
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := resolveConfig(cmd, v)
			if err != nil {
				return err
			}

			logger.New().Debug().
				Int("start", conf.Start).
				Int("end", conf.End).
				Int("retries", conf.Retries).
				Dur("delay", conf.Delay.Std()).
				Str("network", conf.Network).
				Str("host", conf.Host).
				Int("concurrency", conf.Concurrency).
				Bool("strict", conf.Strict).
				Bool("excludeDocker", conf.ExcludeDocker).
				Msg("resolved configuration")

			return runFind(cmd, conf)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "Disable all logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	defaults := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML or JSONC file with default settings")
	pf.String("network", defaults.Network, "Network to probe: tcp, tcp4, tcp6, udp, udp4, udp6")
	pf.String("host", defaults.Host, "Local address to bind (default all interfaces)")
	pf.Int("concurrency", defaults.Concurrency, "Maximum probes in flight")

	f := rootCmd.Flags()
	f.Int("start", defaults.Start, "First port of the range")
	f.Int("end", defaults.End, "Last port of the range")
	f.Int("retries", defaults.Retries, "Attempts over the whole range")
	f.Duration("delay", defaults.Delay.Std(), "Wait between attempts")
	f.Bool("strict", defaults.Strict, "Fail on probe errors instead of skipping the port")
	f.Bool("exclude-docker", defaults.ExcludeDocker, "Skip host ports published by Docker containers")

	rootCmd.AddCommand(NewCheckCommand(v))

	return rootCmd
}

// resolveConfig merges flags, environment and the optional config file.
func resolveConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	conf := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput, "failed to load configuration", err)
		}
		conf = *loaded
	}

	v.SetDefault("start", conf.Start)
	v.SetDefault("end", conf.End)
	v.SetDefault("retries", conf.Retries)
	v.SetDefault("delay", conf.Delay.Std().String())
	v.SetDefault("network", conf.Network)
	v.SetDefault("host", conf.Host)
	v.SetDefault("concurrency", conf.Concurrency)
	v.SetDefault("strict", conf.Strict)
	v.SetDefault("exclude-docker", conf.ExcludeDocker)

	resolved := config.Config{
		Network: v.GetString("network"),
		Host:    v.GetString("host"),
	}

	// viper's GetInt and GetBool turn malformed values into zero, which
	// would make "PORTFIND_START=abc" a search starting at port 0.
	ints := []struct {
		key, field string
		dst        *int
	}{
		{"start", "startPort", &resolved.Start},
		{"end", "endPort", &resolved.End},
		{"retries", "retries", &resolved.Retries},
		{"concurrency", "concurrency", &resolved.Concurrency},
	}
	for _, s := range ints {
		n, err := intSetting(v, s.key, s.field)
		if err != nil {
			return nil, toCLIError(err)
		}
		*s.dst = n
	}

	bools := []struct {
		key, field string
		dst        *bool
	}{
		{"strict", "strict", &resolved.Strict},
		{"exclude-docker", "excludeDocker", &resolved.ExcludeDocker},
	}
	for _, s := range bools {
		b, err := boolSetting(v, s.key, s.field)
		if err != nil {
			return nil, toCLIError(err)
		}
		*s.dst = b
	}

	raw := v.GetString("delay")
	delay, err := config.ParseDuration(raw)
	if err != nil {
		return nil, toCLIError(&port.ValidationError{Field: "delay", Reason: fmt.Sprintf("%q is not a duration", raw)})
	}
	resolved.Delay = config.Duration(delay)

	if err := resolved.Validate(); err != nil {
		return nil, toCLIError(err)
	}

	return &resolved, nil
}

// intSetting reads key as a base-10 integer. field names the setting in the
// returned *port.ValidationError.
func intSetting(v *viper.Viper, key, field string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &port.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not an integer", raw)}
	}
	return n, nil
}

// boolSetting reads key with strconv.ParseBool semantics.
func boolSetting(v *viper.Viper, key, field string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &port.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a boolean", raw)}
	}
	return b, nil
}

// closeLogFile points logging back at stderr and closes the --log-file
// handle, if one is open. It is safe to call more than once.
func closeLogFile() {
	if logFileHandle == nil {
		return
	}
	logger.GlobalSetConsole()
	_ = logFileHandle.Close()
	logFileHandle = nil
}

// toCLIError attaches an exit code to scanner and configuration errors.
func toCLIError(err error) error {
	var (
		cliErr    *model.CLIError
		invalid   *port.ValidationError
		exhausted *port.PortRangeExhausted
		failure   *port.ProbeFailure
	)

	switch {
	case errors.As(err, &cliErr):
		return cliErr
	case errors.As(err, &invalid):
		return model.WrapCLIError(model.ExitInvalidInput, "invalid search parameters", err)
	case errors.As(err, &exhausted):
		return model.WrapCLIError(model.ExitPortRangeExhausted, "port search failed", err)
	case errors.As(err, &failure):
		return model.WrapCLIError(model.ExitProbeFailed, "port search failed", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.WrapCLIError(model.ExitGeneralError, "port search interrupted", err)
	default:
		// Config.Validate reports network and concurrency problems as
		// plain errors.
		return model.WrapCLIError(model.ExitInvalidInput, "invalid search parameters", err)
	}
}

// Execute runs the root command and exits with the code carried by the
// returned error. SIGINT and SIGTERM cancel a running search.
func Execute(rootCmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLogFile()

	if err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			printError(cliErr.Message, cliErr.Err)
			os.Exit(int(cliErr.Code))
		}

		printError(err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// stdout is reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	}
}

// writeJSON prints v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
