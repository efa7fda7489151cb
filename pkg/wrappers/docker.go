package wrappers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/user/cisaudit/pkg/engine"
)

// ErrNoSuchContainer reports a container that disappeared before it could
// be inspected.
var ErrNoSuchContainer = errors.New("no such container")

// DockerCLI talks to the container runtime through the docker binary.
type DockerCLI struct {
	Runner  Runner
	Binary  string
	Timeout time.Duration
}

// NewDockerCLI returns a client for binary using an ExecRunner.
func NewDockerCLI(binary string, timeout time.Duration) *DockerCLI {
	if binary == "" {
		binary = "docker"
	}
	return &DockerCLI{Runner: ExecRunner{}, Binary: binary, Timeout: timeout}
}

func (d *DockerCLI) run(ctx context.Context, args ...string) (string, error) {
	argv := append([]string{d.Binary}, args...)
	res, err := d.Runner.Run(ctx, argv, d.Timeout)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(res.Stdout)
		}
		return "", fmt.Errorf("%s %s exited %d: %s", d.Binary, args[0], res.ExitCode, msg)
	}
	return res.Stdout, nil
}

// ListContainers returns container ids. filter is engine.FilterRunning,
// engine.FilterAll, or a raw docker --filter expression.
func (d *DockerCLI) ListContainers(ctx context.Context, filter string) ([]string, error) {
	args := []string{"ps", "-q", "--no-trunc"}
	switch filter {
	case "", engine.FilterRunning:
	case engine.FilterAll:
		args = append(args, "-a")
	default:
		args = append(args, "-a", "--filter", filter)
	}
	out, err := d.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Inspect returns the decoded inspect document of one container.
func (d *DockerCLI) Inspect(ctx context.Context, id string) (map[string]any, error) {
	out, err := d.run(ctx, "inspect", "--type", "container", id)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), ErrNoSuchContainer.Error()) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchContainer, id)
		}
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal([]byte(out), &docs); err != nil {
		return nil, fmt.Errorf("decode inspect output for %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchContainer, id)
	}
	return docs[0], nil
}

// ListImages returns the unique ids of local images.
func (d *DockerCLI) ListImages(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "images", "-q", "--no-trunc")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, id := range splitLines(out) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ImageHistory returns the build instructions of an image, newest first.
func (d *DockerCLI) ImageHistory(ctx context.Context, image string) (string, error) {
	return d.run(ctx, "history", "--no-trunc", "--format", "{{.CreatedBy}}", image)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
