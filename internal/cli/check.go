package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shinji-kodama/portfind/internal/logger"
	"github.com/shinji-kodama/portfind/internal/model"
	"github.com/shinji-kodama/portfind/internal/port"
)

// NewCheckCommand creates the "check" command, which probes the given ports
// once and reports each outcome.
func NewCheckCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check <port|start-end>...",
		Short: "Probe individual ports once",
		Long: `Probe each given port (or inclusive range) once and print whether it is
available, occupied, or could not be probed.`,
		Example: `  portfind check 8080
  portfind check 3000 4000-4010 --network udp --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := parsePortArgs(args)
			if err != nil {
				return model.WrapCLIError(model.ExitInvalidInput, "invalid port argument", err)
			}

			conf, err := resolveConfig(cmd, v)
			if err != nil {
				return err
			}

			logger.New().Debug().
				Ints("ports", ports).
				Str("network", conf.Network).
				Str("host", conf.Host).
				Int("concurrency", conf.Concurrency).
				Msg("checking ports")

			scanner := port.NewScanner(
				port.WithProber(&port.NetProber{Network: conf.Network, Host: conf.Host}),
				port.WithConcurrency(conf.Concurrency),
			)
			outcomes, err := scanner.ProbeAll(cmd.Context(), ports)
			if err != nil {
				return toCLIError(err)
			}

			reports := make([]model.ProbeReport, 0, len(outcomes))
			for _, o := range outcomes {
				r := model.ProbeReport{Port: o.Port, Status: o.Status.String()}
				if o.Err != nil {
					r.Error = o.Err.Error()
				}
				reports = append(reports, r)
			}

			if jsonOutput {
				return writeJSON(cmd, reports)
			}

			out := cmd.OutOrStdout()
			for _, r := range reports {
				if r.Error != "" {
					fmt.Fprintf(out, "%d\t%s: %s\n", r.Port, r.Status, r.Error)
					continue
				}
				fmt.Fprintf(out, "%d\t%s\n", r.Port, r.Status)
			}
			return nil
		},
	}
}

// parsePortArgs expands "8080" and "4000-4010" arguments into port numbers,
// in argument order. Range checks against the port domain are left to the
// prober so that out-of-range values are reported like any other failure.
func parsePortArgs(args []string) ([]int, error) {
	var ports []int
	for _, arg := range args {
		lo, hi, isRange := strings.Cut(arg, "-")
		if !isRange || lo == "" {
			p, err := strconv.Atoi(arg)
			if err != nil {
				return nil, fmt.Errorf("%q is not a port number", arg)
			}
			ports = append(ports, p)
			continue
		}

		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("%q is not a port range", arg)
		}
		end, err := strconv.Atoi(hi)
		if err != nil {
			return nil, fmt.Errorf("%q is not a port range", arg)
		}
		if start > end {
			return nil, fmt.Errorf("%q: start is greater than end", arg)
		}
		if end-start > port.MaxPort {
			return nil, fmt.Errorf("%q spans more than %d ports", arg, port.MaxPort+1)
		}
		for p := start; p <= end; p++ {
			ports = append(ports, p)
		}
	}
	return ports, nil
}
