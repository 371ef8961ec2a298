package autopilot

import (
	"time"

	moderr "github.com/Morboz/auto-pilot/errors"
	"github.com/Morboz/auto-pilot/internal/config"
)

// NewFromFile builds the adapter for a named entry of the YAML config
// (see internal/config for locations and environment overrides) and
// returns it together with the entry's default model.
func NewFromFile(name string) (Adapter, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", moderr.Wrap(moderr.KindConfiguration, "", err)
	}
	entry, ok := cfg.Providers[name]
	if !ok {
		return nil, "", moderr.Newf(moderr.KindConfiguration, "no provider entry %q in config", name)
	}
	adapter, err := New(entry.Provider, Config{
		APIKey:     entry.APIKey,
		BaseURL:    entry.BaseURL,
		Timeout:    time.Duration(entry.TimeoutSeconds) * time.Second,
		MaxRetries: entry.MaxRetries,
	})
	if err != nil {
		return nil, "", err
	}
	return adapter, entry.DefaultModel, nil
}
