package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/moneyclaw/moneyclaw/internal/store"
)

// maxAnthropicPages bounds cursor pagination against a runaway catalogue.
const maxAnthropicPages = 5

// anthropicPageSize is the number of models requested per page.
const anthropicPageSize = 100

// AnthropicDiscoverer lists models from Anthropic's cursor-paginated
// /v1/models endpoint.
type AnthropicDiscoverer struct {
	baseURL    string
	apiKey     string
	httpClient httpDoer
}

func NewAnthropicDiscoverer(baseURL, apiKey string, httpClient httpDoer) *AnthropicDiscoverer {
	return &AnthropicDiscoverer{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

func (d *AnthropicDiscoverer) Provider() store.Provider { return store.ProviderAnthropic }

type anthropicModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

func (d *AnthropicDiscoverer) Discover(ctx context.Context) ([]store.ModelRegistryRow, error) {
	var rows []store.ModelRegistryRow
	afterID := ""

	for page := 0; page < maxAnthropicPages; page++ {
		batch, hasMore, lastID, err := d.fetchPage(ctx, afterID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if !hasMore || lastID == "" {
			break
		}
		afterID = lastID
	}

	return rows, nil
}

func (d *AnthropicDiscoverer) fetchPage(ctx context.Context, afterID string) ([]store.ModelRegistryRow, bool, string, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	endpoint := d.baseURL + "/v1/models?limit=" + fmt.Sprint(anthropicPageSize)
	if afterID != "" {
		endpoint += "&after_id=" + url.QueryEscape(afterID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, "", fmt.Errorf("build models request: %w", err)
	}
	req.Header.Set("x-api-key", d.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, false, "", fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, "", fmt.Errorf("list models: unexpected status %d", resp.StatusCode)
	}

	var parsed anthropicModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, "", fmt.Errorf("decode models response: %w", err)
	}

	rows := make([]store.ModelRegistryRow, 0, len(parsed.Data))
	lastID := ""
	for _, m := range parsed.Data {
		rows = append(rows, store.ModelRegistryRow{
			ModelID:        m.ID,
			Provider:       store.ProviderAnthropic,
			DisplayName:    m.ID,
			MinimumTier:    defaultMinimumTier,
			MaxOutputToken: defaultMaxTokens,
			ContextWindow:  anthropicContextWnd,
			SupportsTools:  true,
			SupportsVision: detectVision(m.ID),
			ParamStyle:     store.ParamStyleMaxTokens,
			Enabled:        true,
		})
		lastID = m.ID
	}

	return rows, parsed.HasMore, lastID, nil
}
