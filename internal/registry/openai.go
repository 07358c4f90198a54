package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/moneyclaw/moneyclaw/internal/store"
)

// OpenAIDiscoverer lists models from an OpenAI-compatible /v1/models
// endpoint. When baseURL is stock OpenAI, only chat models pass the
// allowlist filter; any other host is treated as fully chat-capable.
type OpenAIDiscoverer struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
	name       store.Provider

	// forceStockOpenAI lets tests exercise the stock-OpenAI chat-model
	// filter against a local test server whose URL isn't literally
	// api.openai.com.
	forceStockOpenAI bool
}

// NewOpenAIDiscoverer constructs a discoverer for name (openai or conway,
// both OpenAI-wire-compatible) against baseURL.
func NewOpenAIDiscoverer(name store.Provider, baseURL, apiKey string, httpClient httpDoer) *OpenAIDiscoverer {
	return &OpenAIDiscoverer{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient, name: name}
}

func (d *OpenAIDiscoverer) Provider() store.Provider { return d.name }

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (d *OpenAIDiscoverer) Discover(ctx context.Context) ([]store.ModelRegistryRow, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: unexpected status %d", resp.StatusCode)
	}

	var parsed openAIModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	stockOpenAI := d.forceStockOpenAI || (d.name == store.ProviderOpenAI && isStockOpenAI(d.baseURL))

	rows := make([]store.ModelRegistryRow, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if stockOpenAI && !isChatModel(m.ID) {
			continue
		}
		rows = append(rows, store.ModelRegistryRow{
			ModelID:        m.ID,
			Provider:       d.name,
			DisplayName:    m.ID,
			MinimumTier:    defaultMinimumTier,
			MaxOutputToken: defaultMaxTokens,
			ContextWindow:  openAIContextWindow,
			SupportsTools:  true,
			SupportsVision: detectVision(m.ID),
			ParamStyle:     store.ParamStyleMaxTokens,
			Enabled:        true,
		})
	}
	return rows, nil
}
