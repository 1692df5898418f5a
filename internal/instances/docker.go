package instances

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
)

// stopTimeoutSeconds is how long Docker waits before killing a stopping container.
const stopTimeoutSeconds = 30

// DockerController manages instances that run as Docker containers named
// after the instance.
type DockerController struct {
	// Host overrides DOCKER_HOST when set.
	Host string

	client *dockerclient.Client
}

// Initialize connects to the Docker daemon and verifies it responds.
func (d *DockerController) Initialize(ctx context.Context) error {
	opts := []dockerclient.Opt{dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation()}
	if d.Host != "" {
		opts = append(opts, dockerclient.WithHost(d.Host))
	}

	var err error
	d.client, err = dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return fmt.Errorf("docker client: %w", err)
	}
	if _, err := d.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	return nil
}

func (d *DockerController) BackendName() string {
	return "docker"
}

func (d *DockerController) Start(ctx context.Context, name string) error {
	return d.wrap(name, d.client.ContainerStart(ctx, name, container.StartOptions{}))
}

func (d *DockerController) Stop(ctx context.Context, name string) error {
	timeout := stopTimeoutSeconds
	return d.wrap(name, d.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}))
}

func (d *DockerController) Restart(ctx context.Context, name string) error {
	timeout := stopTimeoutSeconds
	return d.wrap(name, d.client.ContainerRestart(ctx, name, container.StopOptions{Timeout: &timeout}))
}

func (d *DockerController) Status(ctx context.Context, name string) (string, error) {
	info, err := d.Describe(ctx, name)
	if err != nil {
		return "", err
	}
	return info.Status, nil
}

func (d *DockerController) Describe(ctx context.Context, name string) (Info, error) {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return Info{}, d.wrap(name, err)
	}

	info := Info{Name: name}
	if st := inspect.State; st != nil {
		health := ""
		if st.Health != nil {
			health = string(st.Health.Status)
		}
		info.Status = containerStatus(string(st.Status), health)
	}
	if inspect.Config != nil {
		info.Image = inspect.Config.Image
	}
	if inspect.HostConfig != nil {
		info.CPUs = float64(inspect.HostConfig.NanoCPUs) / 1e9
		info.MemoryBytes = inspect.HostConfig.Memory
	}
	if inspect.NetworkSettings != nil {
		for _, ep := range inspect.NetworkSettings.Networks {
			if ep != nil && ep.IPAddress != "" {
				info.Address = ep.IPAddress
				break
			}
		}
	}
	if created, err := time.Parse(time.RFC3339Nano, inspect.Created); err == nil {
		info.CreatedAt = created
	}
	return info, nil
}

func (d *DockerController) wrap(name string, err error) error {
	if err == nil {
		return nil
	}
	if dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return err
}

// containerStatus maps Docker container state onto the instance status
// vocabulary shown to users.
func containerStatus(state, health string) string {
	switch state {
	case "running":
		if health == "unhealthy" {
			return "error"
		}
		if health == "starting" {
			return "starting"
		}
		return "running"
	case "created", "restarting":
		return "starting"
	case "paused":
		return "paused"
	case "exited", "dead":
		return "stopped"
	default:
		return state
	}
}
