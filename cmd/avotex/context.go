package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/vexmx/avotex/internal/config"
	"github.com/vexmx/avotex/internal/database"
)

type commandContext struct {
	configFlag *string
	debugFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string, debugFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		debugFlag:  debugFlag,
	}
}

// ensureConfig loads the configuration once. An explicit --config must
// exist; the default locations fall back to built-in defaults.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		explicit := path != ""
		if !explicit {
			path = config.GetConfigPath()
		}

		cfg, err := config.LoadConfig(path)
		if err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				c.configErr = err
				return
			}
			if cfg, err = config.Default(); err != nil {
				c.configErr = err
				return
			}
		}
		if *c.debugFlag {
			cfg.Server.Debug = true
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(w io.Writer) *slog.Logger {
	cfg, _ := c.ensureConfig()
	debug := cfg != nil && cfg.Server.Debug
	return newLogger(w, debug)
}

func (c *commandContext) openStore(logger *slog.Logger) (*database.SQLDB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	target := cfg.Database.Path
	if cfg.Database.Driver == "postgres" {
		target = cfg.Database.DSN
	}
	db, err := database.Open(cfg.Database.Driver, target, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newLogger writes text logs; debug adds source locations and debug level.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
