package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// dockerClient is the thin layer over the Docker Engine API that Sandbox
// drives. Every method takes the container name the Sandbox already knows
// about; dockerClient never tracks state of its own.
type dockerClient struct {
	cli *client.Client
}

func newDockerClient(host string) (*dockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client: %w", err)
	}
	return &dockerClient{cli: cli}, nil
}

func (d *dockerClient) Close() error { return d.cli.Close() }

// imageExists reports whether tag has already been built.
func (d *dockerClient) imageExists(ctx context.Context, tag string) (bool, error) {
	imgs, err := d.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", tag)),
	})
	if err != nil {
		return false, err
	}
	return len(imgs) > 0, nil
}

// buildImage builds tag from the rendered Dockerfile tar context.
func (d *dockerClient) buildImage(ctx context.Context, tag, geometry string) error {
	ctxTar, err := buildContext(geometry)
	if err != nil {
		return err
	}
	resp, err := d.cli.ImageBuild(ctx, bytes.NewReader(ctxTar), image.BuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// removeContainersUsingImage force-removes every container — running or
// stopped — created from tag. Called before a rebuild so a changed recipe
// never leaves behind a container still running the old image.
func (d *dockerClient) removeContainersUsingImage(ctx context.Context, tag string) error {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("ancestor", tag)),
	})
	if err != nil {
		return err
	}
	for _, c := range containers {
		if err := d.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return err
		}
	}
	return nil
}

// findContainer returns the container ID for name, including stopped
// containers, or "" if none exists.
func (d *dockerClient) findContainer(ctx context.Context, name string) (string, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return "", err
	}
	if len(containers) == 0 {
		return "", nil
	}
	return containers[0].ID, nil
}

// createContainer creates (but does not start) a new container bind-mounting
// workspaceDir onto /home/agent and publishing novncPort -> 6080.
func (d *dockerClient) createContainer(ctx context.Context, name, imageTag, workspaceDir string, novncPort int) (string, error) {
	portKey := nat.Port("6080/tcp")
	hostPort := strconv.Itoa(novncPort)

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        imageTag,
			ExposedPorts: nat.PortSet{portKey: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{portKey: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}},
			Binds:        []string{workspaceDir + ":/home/agent"},
		},
		nil, nil, name,
	)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (d *dockerClient) startContainer(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d *dockerClient) stopContainer(ctx context.Context, id string) error {
	return d.cli.ContainerStop(ctx, id, container.StopOptions{})
}

func (d *dockerClient) removeContainer(ctx context.Context, id string) error {
	return d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// exec runs cmd through bash inside the container, returning combined
// stdout+stderr.
func (d *dockerClient) exec(ctx context.Context, id, cmd string) (string, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          []string{"bash", "-c", cmd},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", err
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", err
	}
	defer attach.Close()

	out, err := io.ReadAll(attach.Reader)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// copyTo writes content to destPath inside the container via the Engine
// API's tar-archive transfer — the API equivalent of `docker cp`, chosen
// specifically to avoid shell quoting when writing arbitrary file content.
func (d *dockerClient) copyTo(ctx context.Context, id, destPath string, content []byte) error {
	dir, name := path.Split(destPath)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
		return err
	}
	if _, err := tw.Write(content); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}

	return d.cli.CopyToContainer(ctx, id, dir, &buf, container.CopyToContainerOptions{})
}

// copyFrom reads srcPath out of the container via the same tar-archive
// transfer, unwrapping the single-file tar the API returns.
func (d *dockerClient) copyFrom(ctx context.Context, id, srcPath string) ([]byte, error) {
	rc, _, err := d.cli.CopyFromContainer(ctx, id, srcPath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	if _, err := tr.Next(); err != nil {
		return nil, fmt.Errorf("sandbox: read tar entry for %s: %w", srcPath, err)
	}
	return io.ReadAll(tr)
}
