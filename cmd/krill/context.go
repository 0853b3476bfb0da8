package main

import (
	"fmt"
	"strings"
	"sync"

	"krill/internal/config"
	"krill/internal/processor"
	"krill/internal/services/humann"
	"krill/internal/services/metaphlan"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// toolByName resolves the profiler argument of tool-scoped subcommands.
func toolByName(cfg *config.Config, name string) (processor.Tool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "metaphlan":
		return metaphlan.New(cfg), nil
	case "humann":
		return humann.New(cfg), nil
	default:
		return nil, fmt.Errorf("unknown tool %q (choose metaphlan or humann)", name)
	}
}
