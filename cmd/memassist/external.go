package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/4thel00z/memassist/internal"
)

// Executables named memassist-<name> on PATH extend the CLI.
const pluginPrefix = "memassist-"

func findExternal(name string) (string, error) {
	path, err := exec.LookPath(pluginPrefix + name)
	if err != nil {
		return "", fmt.Errorf("unknown command %q: %s%s not found in PATH", name, pluginPrefix, name)
	}
	return path, nil
}

// listExternalCommands returns plugin names in PATH order of first
// appearance, sorted.
func listExternalCommands() []string {
	seen := make(map[string]bool)
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if name := pluginName(dir, entry); name != "" {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pluginName(dir string, entry os.DirEntry) string {
	if entry.IsDir() || !strings.HasPrefix(entry.Name(), pluginPrefix) {
		return ""
	}

	info, err := os.Stat(filepath.Join(dir, entry.Name()))
	if err != nil || info.Mode()&0111 == 0 {
		return ""
	}

	return strings.TrimPrefix(entry.Name(), pluginPrefix)
}

func executeExternal(ctx context.Context, name string, args []string, version string) error {
	binaryPath, err := findExternal(name)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Env = pluginEnv(version)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// pluginEnv tells a plugin where the binary and the data directory are.
func pluginEnv(version string) []string {
	bin, _ := os.Executable()
	dataDir := internal.ResolveDataDir(os.Getenv("MEMASSIST_DATA_DIR"))

	return append(os.Environ(),
		"MEMASSIST_VERSION="+version,
		"MEMASSIST_BIN="+bin,
		"MEMASSIST_DATA_DIR="+dataDir,
	)
}
