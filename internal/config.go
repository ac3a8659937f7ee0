package internal

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type FilesConfig struct {
	UserNotes         string `yaml:"user_notes"`
	ModelDescriptions string `yaml:"model_descriptions"`
	Combined          string `yaml:"combined"`
	IndexDir          string `yaml:"index_dir"`
	ImagesDir         string `yaml:"images_dir"`
	RecordingsDir     string `yaml:"recordings_dir"`
	RunnerLog         string `yaml:"runner_log"`
}

type RunnerConfig struct {
	Command      string        `yaml:"command"`
	Args         []string      `yaml:"args"`
	Model        string        `yaml:"model"`
	Settle       time.Duration `yaml:"settle"`
	StopSettle   time.Duration `yaml:"stop_settle"`
	GracePeriod  time.Duration `yaml:"grace_period"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRestarts  int           `yaml:"max_restarts"`
	MaxLogBytes  int64         `yaml:"max_log_bytes"`
}

type VocabularyConfig struct {
	Labels    []string `yaml:"labels"`
	Threshold float64  `yaml:"threshold"`
	Model     string   `yaml:"model,omitempty"`
}

type WakeConfig struct {
	// Backend selects the classifier: "runner" tails a local process log,
	// "stream" reads a websocket classification stream.
	Backend        string           `yaml:"backend"`
	Runner         RunnerConfig     `yaml:"runner"`
	StreamEndpoint string           `yaml:"stream_endpoint,omitempty"`
	Command        VocabularyConfig `yaml:"command"`
	Confirm        VocabularyConfig `yaml:"confirm"`
	CaptureLabel   string           `yaml:"capture_label"`
	QueryLabel     string           `yaml:"query_label"`
	YesLabel       string           `yaml:"yes_label"`
	NoLabel        string           `yaml:"no_label"`
}

type DialogConfig struct {
	// MaxAttempts bounds recordings per dictation; 0 keeps asking forever.
	MaxAttempts  int           `yaml:"max_attempts"`
	DisplayDelay time.Duration `yaml:"display_delay"`
}

type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	UserQuota     int `yaml:"user_quota"`
	ModelQuota    int `yaml:"model_quota"`
	CandidatePool int `yaml:"candidate_pool"`
}

type EmbeddingsConfig struct {
	Backend   string `yaml:"backend"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	CacheSize int    `yaml:"cache_size"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

type CaptioningConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	Patterns    []string `yaml:"patterns"`
	MaxChars    int      `yaml:"max_chars"`
	Concurrency int      `yaml:"concurrency"`
}

type ReasoningConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// VoiceConfig holds the external commands used for physical I/O. Arguments
// may reference {text}, {in}, {out} and {seconds}.
type VoiceConfig struct {
	Speak         []string      `yaml:"speak"`
	Record        []string      `yaml:"record"`
	RecordSeconds int           `yaml:"record_seconds"`
	Transcribe    []string      `yaml:"transcribe"`
	Capture       []string      `yaml:"capture"`
	CapturePrefix string        `yaml:"capture_prefix"`
	Display       []string      `yaml:"display"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	LogLevel        string                    `yaml:"log_level"`
	Files           FilesConfig               `yaml:"files"`
	Wake            WakeConfig                `yaml:"wake"`
	Dialog          DialogConfig              `yaml:"dialog"`
	Retrieval       RetrievalConfig           `yaml:"retrieval"`
	Embeddings      EmbeddingsConfig          `yaml:"embeddings"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Reasoning       ReasoningConfig           `yaml:"reasoning"`
	Captioning      CaptioningConfig          `yaml:"captioning"`
	Voice           VoiceConfig               `yaml:"voice"`
	History         HistoryConfig             `yaml:"history"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Files: FilesConfig{
			UserNotes:         DefaultUserNotesFile,
			ModelDescriptions: DefaultModelDescsFile,
			Combined:          DefaultCombinedFile,
			IndexDir:          DefaultIndexDir,
			ImagesDir:         DefaultImagesDir,
			RecordingsDir:     DefaultRecordingsDir,
			RunnerLog:         DefaultRunnerLogFile,
		},
		Wake: WakeConfig{
			Backend: "runner",
			Runner: RunnerConfig{
				Command:      "edge-impulse-linux-runner",
				Args:         []string{"--model", "{model}"},
				Model:        "model.eim",
				Settle:       2 * time.Second,
				StopSettle:   2 * time.Second,
				GracePeriod:  5 * time.Second,
				PollInterval: 300 * time.Millisecond,
				MaxRestarts:  3,
				MaxLogBytes:  4 << 20,
			},
			Command:      VocabularyConfig{Labels: []string{"takephoto", "himan"}, Threshold: 0.7},
			Confirm:      VocabularyConfig{Labels: []string{"yes", "no"}, Threshold: 0.6},
			CaptureLabel: "takephoto",
			QueryLabel:   "himan",
			YesLabel:     "yes",
			NoLabel:      "no",
		},
		Dialog: DialogConfig{
			MaxAttempts:  0,
			DisplayDelay: 5 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK: 6,
		},
		Embeddings: EmbeddingsConfig{
			Backend:   "ollama",
			BaseURL:   "http://localhost:11434",
			Model:     "nomic-embed-text",
			Dimension: 768,
			CacheSize: 256,
		},
		Providers: map[string]ProviderConfig{
			"ollama": {BaseURL: "http://localhost:11434/v1", Model: "llama3.2:3b"},
		},
		DefaultProvider: "ollama",
		Reasoning: ReasoningConfig{
			Provider: "ollama",
			Model:    "llama3.2:3b",
		},
		Captioning: CaptioningConfig{
			Provider:    "ollama",
			Model:       "llava-phi3:3.8b",
			Patterns:    []string{"*.jpg", "*.jpeg", "*.png"},
			MaxChars:    480,
			Concurrency: 1,
		},
		Voice: VoiceConfig{
			Speak:         []string{"espeak", "-s", "120", "{text}"},
			Record:        []string{"arecord", "-q", "-d", "{seconds}", "-f", "S16_LE", "-r", "16000", "-c", "1", "{out}"},
			RecordSeconds: 6,
			Transcribe:    []string{"whisper-cli", "-m", "ggml-base.en.bin", "-nt", "-np", "-f", "{in}"},
			Capture:       []string{"fswebcam", "--no-banner", "{out}"},
			CapturePrefix: "img",
			Display:       []string{"feh", "--fullscreen", "{in}"},
		},
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Wake),
		validation.Field(&c.Retrieval),
		validation.Field(&c.Embeddings),
		validation.Field(&c.Captioning),
	)
}

func (w WakeConfig) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.Backend, validation.Required, validation.In("runner", "stream")),
		validation.Field(&w.StreamEndpoint, validation.When(w.Backend == "stream", validation.Required)),
		validation.Field(&w.Runner, validation.When(w.Backend == "runner", validation.Required)),
		validation.Field(&w.Command),
		validation.Field(&w.Confirm),
		validation.Field(&w.CaptureLabel, validation.Required),
		validation.Field(&w.QueryLabel, validation.Required),
		validation.Field(&w.YesLabel, validation.Required),
		validation.Field(&w.NoLabel, validation.Required),
	)
}

func (r RunnerConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Command, validation.Required),
		validation.Field(&r.PollInterval, validation.Required),
		validation.Field(&r.MaxRestarts, validation.Min(0)),
		validation.Field(&r.StopSettle, validation.Min(time.Duration(0))),
	)
}

func (v VocabularyConfig) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.Labels, validation.Required),
		validation.Field(&v.Threshold, validation.Required, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (r RetrievalConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TopK, validation.Required, validation.Min(1)),
		validation.Field(&r.UserQuota, validation.Min(0)),
		validation.Field(&r.ModelQuota, validation.Min(0)),
		validation.Field(&r.CandidatePool, validation.Min(0)),
	)
}

func (e EmbeddingsConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Backend, validation.Required, validation.In("ollama", "hash")),
		validation.Field(&e.Model, validation.When(e.Backend == "ollama", validation.Required)),
		validation.Field(&e.Dimension, validation.Required, validation.Min(1)),
	)
}

func (c CaptioningConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Patterns, validation.Required),
		validation.Field(&c.MaxChars, validation.Min(0)),
		validation.Field(&c.Concurrency, validation.Min(1)),
	)
}

// Layout binds the configured file names to a data directory.
func (c *Config) Layout(root string) Layout {
	return Layout{Root: root, Files: c.Files}
}

// LoadConfig reads path, falling back to defaults when it does not exist.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Provider returns the named provider, or the default one when name is empty.
func (c *Config) Provider(name string) (string, ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("provider %q not found", name)
	}
	return name, p, nil
}
