package v1

import "io"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	dataDir    string
	configPath string
	hashDims   int
	inMemory   bool
	logOutput  io.Writer
	logLevel   string
}

// WithDataDir selects the data directory. By default the nearest directory
// holding a memassist.yaml is used.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithConfigFile reads configuration from path instead of the data directory.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) {
		c.configPath = path
	}
}

// WithHashEmbeddings embeds offline with a hashed bag of words of the given
// dimension instead of the configured embedding model.
func WithHashEmbeddings(dim int) Option {
	return func(c *clientConfig) {
		c.hashDims = dim
	}
}

// WithInMemoryIndex keeps the semantic index in memory only.
func WithInMemoryIndex() Option {
	return func(c *clientConfig) {
		c.inMemory = true
	}
}

// WithLogOutput sends logs to w at the given level.
func WithLogOutput(w io.Writer, level string) Option {
	return func(c *clientConfig) {
		c.logOutput = w
		c.logLevel = level
	}
}
