package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"assetcycle/internal/changes"
	"assetcycle/internal/config"
	"assetcycle/internal/logging"
	"assetcycle/internal/notifications"
	"assetcycle/internal/platform"
	"assetcycle/internal/platform/googleads"
	"assetcycle/internal/registry"
	"assetcycle/internal/storage"
	"assetcycle/internal/workflow"
)

type commandContext struct {
	configFlag *string
	jsonOutput bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	storeOnce sync.Once
	db        *storage.DB
	storeErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	// Overridable in tests.
	platformClient platform.Client
	notifier       notifications.Service
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

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) database() (*storage.DB, error) {
	c.storeOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.storeErr = err
			return
		}
		c.db, c.storeErr = storage.Open(cfg.DatabasePath())
	})
	return c.db, c.storeErr
}

func (c *commandContext) registryStore() (*registry.Store, error) {
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	return registry.New(db), nil
}

func (c *commandContext) changeStore() (*changes.Store, error) {
	db, err := c.database()
	if err != nil {
		return nil, err
	}
	return changes.New(db), nil
}

func (c *commandContext) platformAPI() (platform.Client, error) {
	if c.platformClient != nil {
		return c.platformClient, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	return googleads.New(cfg.GoogleAds), nil
}

func (c *commandContext) notifierService() (notifications.Service, error) {
	if c.notifier != nil {
		return c.notifier, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return notifications.NewService(cfg), nil
}

func (c *commandContext) runner() (*workflow.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := c.platformAPI()
	if err != nil {
		return nil, err
	}
	reg, err := c.registryStore()
	if err != nil {
		return nil, err
	}
	store, err := c.changeStore()
	if err != nil {
		return nil, err
	}
	notifier, err := c.notifierService()
	if err != nil {
		return nil, err
	}
	return workflow.NewRunnerWithDependencies(cfg, workflow.Dependencies{
		Platform: client,
		Registry: reg,
		Changes:  store,
		Notifier: notifier,
		Logger:   c.log(),
	})
}

func (c *commandContext) close() {
	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func requireArg(args []string, name string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return strings.TrimSpace(args[0]), nil
}
