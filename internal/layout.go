package internal

import (
	"os"
	"path/filepath"
)

const (
	ConfigFilename        = "memassist.yaml"
	DefaultUserNotesFile  = "memory_text_user.json"
	DefaultModelDescsFile = "memory_text_model.json"
	DefaultCombinedFile   = "memory_combined.json"
	DefaultIndexDir       = "chroma_db"
	DefaultImagesDir      = "memory_images"
	DefaultRecordingsDir  = "recordings"
	DefaultRunnerLogFile  = "runner_output.log"
	LockFilename          = ".memassist.lock"
)

// Layout resolves every persisted artifact relative to one data directory.
type Layout struct {
	Root  string
	Files FilesConfig
}

func (l Layout) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Root, p)
}

func (l Layout) UserNotesPath() string         { return l.resolve(l.Files.UserNotes) }
func (l Layout) ModelDescriptionsPath() string { return l.resolve(l.Files.ModelDescriptions) }
func (l Layout) CombinedPath() string          { return l.resolve(l.Files.Combined) }
func (l Layout) IndexPath() string             { return l.resolve(l.Files.IndexDir) }
func (l Layout) ImagesPath() string            { return l.resolve(l.Files.ImagesDir) }
func (l Layout) RecordingsPath() string        { return l.resolve(l.Files.RecordingsDir) }
func (l Layout) RunnerLogPath() string         { return l.resolve(l.Files.RunnerLog) }
func (l Layout) LockPath() string              { return filepath.Join(l.Root, LockFilename) }
func (l Layout) ConfigPath() string            { return filepath.Join(l.Root, ConfigFilename) }

// Documents lists the JSON documents owned by the sync pipeline.
func (l Layout) Documents() []string {
	return []string{l.UserNotesPath(), l.ModelDescriptionsPath(), l.CombinedPath()}
}

// ResolveDataDir returns explicit when set, otherwise the nearest ancestor of
// the working directory holding a memassist.yaml, otherwise the working
// directory itself.
func ResolveDataDir(explicit string) string {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return explicit
		}
		return abs
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if dir, ok := findDataDir(cwd); ok {
		return dir
	}
	return cwd
}

func findDataDir(dir string) (string, bool) {
	for {
		info, err := os.Stat(filepath.Join(dir, ConfigFilename))
		if err == nil && !info.IsDir() {
			return dir, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
