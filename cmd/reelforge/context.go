package main

import (
	"strings"
	"sync"

	"reelforge/internal/config"
)

type commandContext struct {
	apiFlag    *string
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
	}
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
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) baseURL() string {
	if c.apiFlag != nil {
		if flag := strings.TrimSpace(*c.apiFlag); flag != "" {
			return flag
		}
	}
	bind := config.Default().Paths.APIBind
	if cfg, err := c.ensureConfig(); err == nil && strings.TrimSpace(cfg.Paths.APIBind) != "" {
		bind = cfg.Paths.APIBind
	}
	if strings.Contains(bind, "://") {
		return bind
	}
	return "http://" + bind
}

func (c *commandContext) client() *apiClient {
	var token string
	if cfg, err := c.ensureConfig(); err == nil {
		token = strings.TrimSpace(cfg.Paths.APIToken)
	}
	return newAPIClient(c.baseURL(), token)
}
