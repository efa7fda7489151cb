// Package resolver turns resource queries into live instances observed from
// the container host.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/wrappers"
)

// ContainerRuntime is the narrow view of the container engine the resolvers need.
type ContainerRuntime interface {
	ListContainers(ctx context.Context, filter string) ([]string, error)
	Inspect(ctx context.Context, id string) (map[string]any, error)
	ListImages(ctx context.Context) ([]string, error)
	ImageHistory(ctx context.Context, image string) (string, error)
}

// Set builds the standard resolver for every query kind.
func Set(rt ContainerRuntime, runner wrappers.Runner, shellTimeout time.Duration) map[engine.QueryKind]engine.Resolver {
	return map[engine.QueryKind]engine.Resolver{
		engine.QueryContainerInspect: &ContainerResolver{Runtime: rt},
		engine.QueryImageHistory:     &ImageHistoryResolver{Runtime: rt},
		engine.QueryEnvVar:           &EnvResolver{},
		engine.QueryShellCommand:     &ShellResolver{Runner: runner, Timeout: shellTimeout},
	}
}

// ContainerResolver yields one inspect document per matching container.
type ContainerResolver struct {
	Runtime ContainerRuntime
}

func (r *ContainerResolver) Resolve(ctx context.Context, q engine.ResourceQuery) ([]engine.Instance, error) {
	filter := q.Filter
	if filter == "" {
		filter = engine.FilterRunning
	}
	ids, err := r.Runtime.ListContainers(ctx, filter)
	if err != nil {
		return nil, &engine.ResolutionError{Kind: q.Kind, Err: err}
	}

	instances := make([]engine.Instance, 0, len(ids))
	for _, id := range ids {
		doc, err := r.Runtime.Inspect(ctx, id)
		if errors.Is(err, wrappers.ErrNoSuchContainer) {
			// exited and removed since the listing; it no longer matches
			zerolog.Ctx(ctx).Debug().Str("container", shortID(id)).Msg("container vanished before inspect")
			continue
		}
		if err != nil {
			return nil, &engine.ResolutionError{Kind: q.Kind, Err: fmt.Errorf("inspect %s: %w", shortID(id), err)}
		}
		instances = append(instances, engine.Instance{ID: shortID(id), Value: doc})
	}
	return instances, nil
}

// ImageHistoryResolver yields the raw build history of one image, or of
// every local image when the query names none.
type ImageHistoryResolver struct {
	Runtime ContainerRuntime
}

func (r *ImageHistoryResolver) Resolve(ctx context.Context, q engine.ResourceQuery) ([]engine.Instance, error) {
	images := []string{q.Image}
	if q.Image == "" {
		var err error
		images, err = r.Runtime.ListImages(ctx)
		if err != nil {
			return nil, &engine.ResolutionError{Kind: q.Kind, Err: err}
		}
	}

	instances := make([]engine.Instance, 0, len(images))
	for _, image := range images {
		history, err := r.Runtime.ImageHistory(ctx, image)
		if err != nil {
			return nil, &engine.ResolutionError{Kind: q.Kind, Err: fmt.Errorf("history %s: %w", shortID(image), err)}
		}
		instances = append(instances, engine.Instance{ID: shortID(image), Value: history})
	}
	return instances, nil
}

// EnvResolver reads a variable from the evaluating process environment.
// An unset variable resolves to a nil value, never to an error.
type EnvResolver struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

func (r *EnvResolver) Resolve(_ context.Context, q engine.ResourceQuery) ([]engine.Instance, error) {
	lookup := r.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	inst := engine.Instance{ID: q.Name}
	if v, ok := lookup(q.Name); ok {
		inst.Value = v
	}
	return []engine.Instance{inst}, nil
}

// ShellResolver runs an argv and exposes its captured result.
type ShellResolver struct {
	Runner  wrappers.Runner
	Timeout time.Duration
}

func (r *ShellResolver) Resolve(ctx context.Context, q engine.ResourceQuery) ([]engine.Instance, error) {
	res, err := r.Runner.Run(ctx, q.Argv, r.Timeout)
	if err != nil {
		return nil, &engine.ResolutionError{Kind: q.Kind, Err: err}
	}
	return []engine.Instance{{
		ID: q.Argv[0],
		Value: map[string]any{
			"stdout":      res.Stdout,
			"stderr":      res.Stderr,
			"exit_status": res.ExitCode,
		},
	}}, nil
}

// shortID trims digests and long container ids to the 12 characters docker
// prints. Image references that are not hex ids are returned unchanged.
func shortID(id string) string {
	hex := strings.TrimPrefix(id, "sha256:")
	if len(hex) <= 12 {
		return hex
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return id
		}
	}
	return hex[:12]
}
