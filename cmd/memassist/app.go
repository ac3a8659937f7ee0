package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/4thel00z/memassist/internal"
	"github.com/spf13/cobra"
)

// servicesFunc hands a command the services of the selected data directory.
type servicesFunc func() (*internal.Services, error)

// app opens the data directory lazily so that commands which never touch
// the index do not pay for loading it.
type app struct {
	dataDir    string
	configPath string
	logLevel   string
	stderr     io.Writer

	once sync.Once
	svc  *internal.Services
	err  error
}

func newApp() *app {
	return &app{stderr: os.Stderr}
}

// configure reads the persistent flags of the command being executed.
func (a *app) configure(cmd *cobra.Command) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	a.dataDir = internal.ResolveDataDir(dataDir)
	a.configPath, _ = cmd.Flags().GetString("config")
	a.logLevel, _ = cmd.Flags().GetString("log-level")
	a.stderr = cmd.ErrOrStderr()
}

func (a *app) config() (*internal.Config, error) {
	path := a.configPath
	if path == "" {
		path = filepath.Join(a.dataDir, internal.ConfigFilename)
	}
	return internal.LoadConfig(path)
}

func (a *app) services() (*internal.Services, error) {
	a.once.Do(func() {
		cfg, err := a.config()
		if err != nil {
			a.err = err
			return
		}

		level := a.logLevel
		if level == "" {
			level = cfg.LogLevel
		}
		log := internal.NewLogger(a.stderr, level)

		a.svc, a.err = internal.OpenServices(a.dataDir, cfg, log)
		if a.err != nil {
			a.err = fmt.Errorf("open %s: %w", a.dataDir, a.err)
		}
	})
	return a.svc, a.err
}

func (a *app) close() {
	if a.svc != nil {
		a.svc.Close()
	}
}
