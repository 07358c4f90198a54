package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/moneyclaw/moneyclaw/internal/store"
)

// OllamaDiscoverer lists locally pulled models from /api/tags. No auth.
type OllamaDiscoverer struct {
	baseURL    string
	httpClient httpDoer
}

func NewOllamaDiscoverer(baseURL string, httpClient httpDoer) *OllamaDiscoverer {
	return &OllamaDiscoverer{baseURL: baseURL, httpClient: httpClient}
}

func (d *OllamaDiscoverer) Provider() store.Provider { return store.ProviderOllama }

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (d *OllamaDiscoverer) Discover(ctx context.Context) ([]store.ModelRegistryRow, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list tags: unexpected status %d", resp.StatusCode)
	}

	var parsed ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	rows := make([]store.ModelRegistryRow, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		rows = append(rows, store.ModelRegistryRow{
			ModelID:        m.Name,
			Provider:       store.ProviderOllama,
			DisplayName:    m.Name,
			MinimumTier:    defaultMinimumTier,
			MaxOutputToken: defaultMaxTokens,
			ContextWindow:  0,
			SupportsTools:  true,
			SupportsVision: detectVision(m.Name),
			ParamStyle:     store.ParamStyleMaxTokens,
			Enabled:        true,
		})
	}
	return rows, nil
}
