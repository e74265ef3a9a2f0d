package docker

import (
	"context"
	"sort"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"github.com/shinji-kodama/portfind/internal/model"
)

// ContainerLister is the subset of the Docker API used to discover
// published ports. *client.Client implements it.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// PublishedPorts returns the sorted, de-duplicated host ports that
// containers publish for protocol ("tcp" or "udp").
//
// Stopped containers are included: their port bindings come back when they
// restart. With the userland proxy disabled Docker forwards these ports with
// NAT rules and never binds them, so a bind probe reports them as free.
func PublishedPorts(ctx context.Context, lister ContainerLister, protocol string) ([]int, error) {
	containers, err := lister.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker containers", err)
	}
	return hostPorts(containers, protocol), nil
}

// hostPorts extracts the published host ports of one protocol. Exposed but
// unpublished ports have a zero PublicPort and are skipped.
func hostPorts(containers []types.Container, protocol string) []int {
	seen := make(map[int]struct{})
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.PublicPort == 0 || p.Type != protocol {
				continue
			}
			seen[int(p.PublicPort)] = struct{}{}
		}
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}
