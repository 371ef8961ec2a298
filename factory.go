package autopilot

import (
	"os"
	"sort"
	"strings"
	"sync"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/adapters/claude"
	"github.com/Morboz/auto-pilot/internal/adapters/local"
	"github.com/Morboz/auto-pilot/internal/adapters/openai"
)

// Built-in provider names.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderLocal  = "local"
)

// Constructor builds an adapter from configuration. Constructors must
// validate their requirements and fail with a configuration error before
// any network activity.
type Constructor func(Config) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		ProviderOpenAI: newOpenAI,
		ProviderClaude: newClaude,
		ProviderLocal:  newLocal,
	}
)

// Register adds or replaces a provider constructor at runtime. Dispatch
// code never changes when providers are added.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates an adapter for the named provider.
func New(provider string, cfg Config) (Adapter, error) {
	registryMu.RLock()
	ctor, ok := registry[strings.ToLower(provider)]
	registryMu.RUnlock()
	if !ok {
		return nil, moderr.Newf(moderr.KindConfiguration,
			"unsupported provider %q; registered providers: %s", provider, strings.Join(Providers(), ", "))
	}
	return ctor(cfg)
}

// NewForModel detects the provider from the model name and creates the
// matching adapter.
func NewForModel(model string, cfg Config) (Adapter, error) {
	return New(DetectProvider(model), cfg)
}

// openModelFamilies lists name fragments of commonly self-hosted model
// families. Substring matching is heuristic; prefix rules always win.
var openModelFamilies = []string{
	"llama",
	"codellama",
	"mistral",
	"phi",
	"gemma",
	"qwen",
	"yi",
	"deepseek",
	"vicuna",
	"alpaca",
}

// DetectProvider resolves a provider name from a model name. Rule order
// is a contract: first-party prefixes beat open-model substrings, which
// beat the default of the primary cloud provider.
func DetectProvider(model string) string {
	lower := strings.ToLower(model)

	if strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1-") || strings.HasPrefix(lower, "o3-") {
		return ProviderOpenAI
	}
	if strings.HasPrefix(lower, "claude-") {
		return ProviderClaude
	}
	for _, family := range openModelFamilies {
		if strings.Contains(lower, family) {
			return ProviderLocal
		}
	}
	return ProviderOpenAI
}

func newOpenAI(cfg Config) (Adapter, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, moderr.New(moderr.KindConfiguration,
			"openai API key is required; set OPENAI_API_KEY or pass Config.APIKey")
	}
	return openai.New(cfg), nil
}

func newClaude(cfg Config) (Adapter, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, moderr.New(moderr.KindConfiguration,
			"claude API key is required; set ANTHROPIC_API_KEY or pass Config.APIKey")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("ANTHROPIC_BASE_URL")
	}
	return claude.New(cfg), nil
}

func newLocal(cfg Config) (Adapter, error) {
	return local.New(cfg)
}
