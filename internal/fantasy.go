package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode/utf8"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
	"charm.land/fantasy/schema"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434/v1"
	ollamaAPIKey         = "ollama"
)

type FantasyConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	// MaxChars truncates captions; 0 leaves them untouched.
	MaxChars int
}

var (
	_ Provider  = (*FantasyProvider)(nil)
	_ Captioner = (*FantasyProvider)(nil)
)

type FantasyProvider struct {
	model    fantasy.LanguageModel
	name     string
	maxChars int
}

func NewFantasyProvider(ctx context.Context, cfg FantasyConfig) (*FantasyProvider, error) {
	var provider fantasy.Provider
	var err error

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)

	case "ollama":
		// Ollama serves the OpenAI-compatible API and ignores the key.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = ollamaAPIKey
		}
		provider, err = openai.New(openai.WithAPIKey(apiKey), openai.WithBaseURL(baseURL))

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)

	case "openrouter":
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		provider, err = openrouter.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	model, err := provider.LanguageModel(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("get language model: %w", err)
	}

	return &FantasyProvider{
		model:    model,
		name:     cfg.Provider,
		maxChars: cfg.MaxChars,
	}, nil
}

// NewFantasyProviderFromConfig resolves provider credentials from cfg and the
// environment. An empty name selects the default provider; model overrides
// the provider's configured model when set.
func NewFantasyProviderFromConfig(ctx context.Context, cfg *Config, name, model string, maxChars int) (*FantasyProvider, error) {
	name, pc, err := cfg.Provider(name)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = pc.Model
	}
	apiKey := pc.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(name)
	}
	kind := name
	if _, ok := knownProviders[name]; !ok {
		// Custom names are OpenAI-compatible endpoints.
		kind = "openai"
	}
	return NewFantasyProvider(ctx, FantasyConfig{
		Provider: kind,
		APIKey:   apiKey,
		BaseURL:  pc.BaseURL,
		Model:    model,
		MaxChars: maxChars,
	})
}

var knownProviders = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"ollama":     "",
	"anthropic":  "ANTHROPIC_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

func apiKeyFromEnv(provider string) string {
	if key := os.Getenv("MEMASSIST_API_KEY"); key != "" {
		return key
	}
	if env := knownProviders[provider]; env != "" {
		return os.Getenv(env)
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (p *FantasyProvider) Name() string {
	return p.name
}

func (p *FantasyProvider) GenerateObject(ctx context.Context, prompt string, target any) error {
	targetVal := reflect.ValueOf(target)
	if targetVal.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer")
	}

	s := schema.Generate(targetVal.Type().Elem())

	call := fantasy.ObjectCall{
		Prompt: fantasy.Prompt{fantasy.NewUserMessage(prompt)},
		Schema: s,
	}

	resp, err := p.model.GenerateObject(ctx, call)
	if err != nil {
		return fmt.Errorf("generate object: %w", err)
	}

	// Providers hand back generic maps; round-trip through JSON to fill target.
	raw, err := json.Marshal(resp.Object)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}

	return nil
}

// Caption asks the vision model to describe one photograph.
func (p *FantasyProvider) Caption(ctx context.Context, imagePath string, ts Timestamp) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(imagePath)))
	if mediaType == "" {
		mediaType = "image/jpeg"
	}

	temperature := 0.3
	resp, err := p.model.Generate(ctx, fantasy.Call{
		Prompt: fantasy.Prompt{
			fantasy.NewUserMessage(
				CaptionPrompt(ts),
				fantasy.FilePart{
					Filename:  filepath.Base(imagePath),
					Data:      data,
					MediaType: mediaType,
				},
			),
		},
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("caption %s: %w", filepath.Base(imagePath), err)
	}

	return truncateText(strings.TrimSpace(resp.Content.Text()), p.maxChars), nil
}

// CaptionPrompt is the instruction sent alongside every photograph.
func CaptionPrompt(ts Timestamp) string {
	return fmt.Sprintf("Describe what's in this image taken at %s in two or three sentences.", ts)
}

func truncateText(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndexAny(cut, ".!?"); i > max/2 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut)
}
