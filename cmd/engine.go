package cmd

import (
	"time"

	"github.com/user/cisaudit/pkg/config"
	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/resolver"
	"github.com/user/cisaudit/pkg/store"
	"github.com/user/cisaudit/pkg/wrappers"
)

// newEngine wires the docker-backed resolvers into an engine.
func newEngine(c *config.Config, obs engine.Observer) (*engine.Engine, error) {
	required, err := c.RequiredKinds()
	if err != nil {
		return nil, err
	}
	docker := wrappers.NewDockerCLI(c.DockerBinary, c.ShellTimeout)
	resolvers := resolver.Set(docker, wrappers.ExecRunner{}, c.ShellTimeout)
	return engine.New(resolvers, engine.Options{
		Concurrency:      c.Concurrency,
		RequireInstances: required,
		Observer:         obs,
	}), nil
}

func openStore(c *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(c.HistoryDB)
}

// overrides applies command line values on top of the loaded config.
func overrides(concurrency int, timeout time.Duration) (*config.Config, error) {
	c := *cfg
	if concurrency > 0 {
		c.Concurrency = concurrency
	}
	if timeout > 0 {
		c.ShellTimeout = timeout
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
