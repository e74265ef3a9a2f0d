package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portfind/internal/config"
	"github.com/shinji-kodama/portfind/internal/docker"
	"github.com/shinji-kodama/portfind/internal/logger"
	"github.com/shinji-kodama/portfind/internal/model"
	"github.com/shinji-kodama/portfind/internal/port"
)

// runFind searches for a port with the resolved settings and prints it.
func runFind(cmd *cobra.Command, conf *config.Config) error {
	ctx := cmd.Context()
	log := logger.New()

	var prober port.Prober = &port.NetProber{Network: conf.Network, Host: conf.Host}

	if conf.ExcludeDocker {
		reserved, err := dockerPublishedPorts(cmd, model.Network(conf.Network).Protocol())
		if err != nil {
			return err
		}
		log.Debug().Ints("ports", reserved).Msg("excluding Docker published ports")
		prober = port.Reserved(prober, reserved...)
	}

	opts := []port.Option{
		port.WithProber(prober),
		port.WithConcurrency(conf.Concurrency),
	}
	if conf.Strict {
		opts = append(opts, port.WithStrictProbes())
	}

	found, err := port.NewScanner(opts...).FindAvailablePort(ctx, conf.Request())
	if err != nil {
		return toCLIError(err)
	}

	log.Debug().Int("port", found).Msg("found available port")

	if jsonOutput {
		return writeJSON(cmd, model.PortResult{
			Port:    found,
			Network: model.Network(conf.Network),
			Host:    conf.Host,
		})
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), found)
	return err
}

// dockerPublishedPorts asks the local Docker daemon for its published host
// ports.
func dockerPublishedPorts(cmd *cobra.Command, protocol string) ([]int, error) {
	ctx := cmd.Context()

	client, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx); err != nil {
		return nil, err
	}
	return client.PublishedPorts(ctx, protocol)
}
