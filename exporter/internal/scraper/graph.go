package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aasm-exporter/aasm/pkg/types"
)

const (
	// ExporterName is shown on the landing page.
	ExporterName = "Azure App Secret Monitor"

	// ExpiryMetric is the gauge carrying one sample per credential.
	ExpiryMetric = "aasm_credential_expiry_timestamp_seconds"

	applicationsPath = "/applications"
	selectFields     = "appId,displayName,keyCredentials,passwordCredentials"

	// maxErrorBody caps how much of an error response is kept for the log.
	maxErrorBody = 512
)

// Scraper is a data source the exporter can serve.
type Scraper interface {
	// Scrape builds a new registry holding the current samples.
	Scrape(ctx context.Context) (*prometheus.Registry, error)

	// Ready returns a short message when the scraper can run, or the reason
	// it cannot.
	Ready(ctx context.Context) (string, error)

	Name() string
}

// TokenReader hands out the current bearer token without blocking on I/O.
type TokenReader interface {
	Current() (string, error)
}

// UpstreamError is returned when Graph answers with a non-200 status.
type UpstreamError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("graph returned HTTP %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// listPage is one page of GET /applications.
type listPage struct {
	Value    []types.Application `json:"value"`
	NextLink string              `json:"@odata.nextLink"`
}

// GraphScraper lists app registrations through Microsoft Graph.
type GraphScraper struct {
	tokens   TokenReader
	client   *http.Client
	endpoint string
}

// NewGraphScraper returns a scraper for the Graph base URL endpoint,
// e.g. https://graph.microsoft.com/v1.0.
func NewGraphScraper(tokens TokenReader, client *http.Client, endpoint string) *GraphScraper {
	return &GraphScraper{
		tokens:   tokens,
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Name implements Scraper.
func (s *GraphScraper) Name() string { return ExporterName }

// Ready implements Scraper. It only checks that a token is cached.
func (s *GraphScraper) Ready(context.Context) (string, error) {
	if _, err := s.tokens.Current(); err != nil {
		return "", err
	}
	return "Ok", nil
}

// Scrape fetches every page of applications and returns a registry with one
// expiry sample per credential. Nothing is returned unless all pages succeed.
func (s *GraphScraper) Scrape(ctx context.Context) (*prometheus.Registry, error) {
	token, err := s.tokens.Current()
	if err != nil {
		return nil, fmt.Errorf("graph scrape: %w", err)
	}

	var apps []types.Application
	next := s.firstPageURL()
	for pages := 1; next != ""; pages++ {
		page, err := s.fetchPage(ctx, next, token)
		if err != nil {
			return nil, fmt.Errorf("graph scrape: page %d: %w", pages, err)
		}
		if slog.Default().Enabled(ctx, slog.LevelDebug) {
			for _, app := range page.Value {
				slog.Debug("scraper: application", "app_id", app.AppID, "summary", app.String())
			}
		}
		apps = append(apps, page.Value...)
		next = page.NextLink
	}

	reg, err := buildRegistry(apps)
	if err != nil {
		return nil, fmt.Errorf("graph scrape: %w", err)
	}
	return reg, nil
}

func (s *GraphScraper) firstPageURL() string {
	q := url.Values{}
	q.Set("$select", selectFields)
	return s.endpoint + applicationsPath + "?" + q.Encode()
}

// fetchPage performs one authenticated GET against pageURL, used verbatim.
func (s *GraphScraper) fetchPage(ctx context.Context, pageURL, token string) (*listPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			URL:        pageURL,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var page listPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}

// buildRegistry maps every credential to one sample keyed by
// (app_id, app_name, key_id).
func buildRegistry(apps []types.Application) (*prometheus.Registry, error) {
	expiry := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: ExpiryMetric,
		Help: "Expiration time of an application secret or certificate, as a Unix timestamp.",
	}, []string{"app_id", "app_name", "key_id"})

	type seriesKey struct{ appID, appName, keyID string }
	seen := make(map[seriesKey]types.CredentialKind)

	for _, app := range apps {
		for _, cred := range app.Credentials() {
			if cred.EndDateTime.IsZero() {
				return nil, fmt.Errorf("app %s: %s credential %s has no endDateTime",
					app.AppID, cred.Kind, cred.KeyID)
			}
			k := seriesKey{app.AppID, app.DisplayName, cred.KeyID}
			if prev, dup := seen[k]; dup {
				// Same label set: the later credential overwrites the sample.
				slog.Warn("scraper: duplicate key_id, keeping the later credential",
					"app_id", app.AppID, "key_id", cred.KeyID,
					"dropped_kind", prev, "kept_kind", cred.Kind)
			}
			seen[k] = cred.Kind
			expiry.WithLabelValues(app.AppID, app.DisplayName, cred.KeyID).
				Set(float64(cred.EndDateTime.Unix()))
		}
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(expiry); err != nil {
		return nil, err
	}
	return reg, nil
}
