package main

import (
	"strings"
	"sync"

	"veracity/internal/api"
	"veracity/internal/config"
	"veracity/internal/queue"
)

// commandContext lazily loads configuration and builds the clients the
// subcommands share.
type commandContext struct {
	configFlag  *string
	addressFlag *string

	mu     sync.Mutex
	cfg    *config.Config
	client *api.Client
}

func newCommandContext(configFlag, addressFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, addressFlag: addressFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg != nil {
		return c.cfg, nil
	}

	path := ""
	if c.configFlag != nil {
		path = *c.configFlag
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	address := cfg.Paths.APIBind
	if c.addressFlag != nil && strings.TrimSpace(*c.addressFlag) != "" {
		address = strings.TrimSpace(*c.addressFlag)
	}
	c.client = api.NewClient(address, cfg.Paths.APIToken)
	return c.client, nil
}

// openStore opens the queue database directly for local administrative
// commands that do not need a running daemon.
func (c *commandContext) openStore() (*queue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return queue.Open(cfg)
}
