package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Current() (string, error) { return s.token, s.err }

const page1 = `{
  "@odata.context": "https://graph.microsoft.com/v1.0/$metadata#applications(appId,displayName,keyCredentials,passwordCredentials)",
  "value": [
    {
      "appId": "app-1",
      "displayName": "billing-api",
      "keyCredentials": [],
      "passwordCredentials": [
        {"keyId": "abc", "displayName": "ci", "endDateTime": "2025-01-01T00:00:00Z", "startDateTime": "2024-01-01T00:00:00Z", "hint": "x~Q"}
      ]
    }
  ],
  "@odata.nextLink": "NEXT"
}`

const page2 = `{
  "value": [
    {
      "appId": "app-2",
      "displayName": "reporting",
      "keyCredentials": [
        {"keyId": "def", "endDateTime": "2026-03-15T12:30:00Z", "customKeyIdentifier": "QUJD"}
      ],
      "passwordCredentials": []
    }
  ]
}`

// graphServer serves page1 first and page2 at the next link it hands out.
// When failPage2 is set the second page answers 503.
func graphServer(t *testing.T, failPage2 bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		if r.URL.Path != "/v1.0/applications" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")

		q := r.URL.Query()
		if q.Get("$skiptoken") == "" {
			if got := q.Get("$select"); got != selectFields {
				t.Errorf("$select = %q, want %q", got, selectFields)
			}
			next := srv.URL + "/v1.0/applications?$skiptoken=RFNwdAIAAQAAACM6"
			_, _ = w.Write([]byte(strings.Replace(page1, "NEXT", next, 1)))
			return
		}

		if got := q.Get("$select"); got != "" {
			t.Errorf("next link was rewritten: $select = %q", got)
		}
		if failPage2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":"serviceNotAvailable"}}`))
			return
		}
		_, _ = w.Write([]byte(page2))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func gaugeValues(t *testing.T, mfs []*dto.MetricFamily) map[string]float64 {
	t.Helper()
	out := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != ExpiryMetric {
			t.Errorf("unexpected family %q", mf.GetName())
			continue
		}
		for _, m := range mf.GetMetric() {
			var parts []string
			for _, lp := range m.GetLabel() {
				parts = append(parts, lp.GetName()+"="+lp.GetValue())
			}
			out[strings.Join(parts, ",")] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestGraphScraper_TwoPages(t *testing.T) {
	srv, hits := graphServer(t, false)
	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL+"/v1.0/")

	reg, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	want := map[string]float64{
		"app_id=app-1,app_name=billing-api,key_id=abc": float64(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix()),
		"app_id=app-2,app_name=reporting,key_id=def":   float64(time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC).Unix()),
	}
	if diff := cmp.Diff(want, gaugeValues(t, mfs)); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	if want["app_id=app-1,app_name=billing-api,key_id=abc"] != 1735689600 {
		t.Fatal("fixture sanity: 2025-01-01T00:00:00Z should be 1735689600")
	}
}

func TestGraphScraper_FailureOnLaterPage(t *testing.T) {
	srv, hits := graphServer(t, true)
	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL+"/v1.0")

	reg, err := s.Scrape(context.Background())
	if err == nil {
		t.Fatal("Scrape() expected error, got nil")
	}
	if reg != nil {
		t.Error("Scrape() returned a partial registry alongside the error")
	}
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if uerr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", uerr.StatusCode)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestGraphScraper_NoToken(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	errNoToken := errors.New("no token available")
	s := NewGraphScraper(staticTokens{err: errNoToken}, srv.Client(), srv.URL)

	if _, err := s.Scrape(context.Background()); !errors.Is(err, errNoToken) {
		t.Fatalf("Scrape() err = %v, want wrapped token error", err)
	}
	if hits.Load() != 0 {
		t.Error("Scrape() called upstream without a token")
	}
}

func TestGraphScraper_EmptyCredentialLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[
			{"appId":"a","displayName":"none","keyCredentials":[],"passwordCredentials":[]},
			{"appId":"b","displayName":"one","keyCredentials":[{"keyId":"k","endDateTime":"2030-01-01T00:00:00Z"}],"passwordCredentials":[]}
		]}`))
	}))
	defer srv.Close()

	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL)
	reg, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	mfs, _ := reg.Gather()
	got := gaugeValues(t, mfs)
	if len(got) != 1 {
		t.Errorf("samples = %v, want exactly one for app b", got)
	}
}

func TestGraphScraper_NoApplications(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL)
	reg, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	mfs, _ := reg.Gather()
	if len(mfs) != 0 {
		t.Errorf("families = %d, want 0 for an empty tenant", len(mfs))
	}
}

func TestGraphScraper_MissingEndDateTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"appId":"a","displayName":"x","passwordCredentials":[{"keyId":"p"}],"keyCredentials":[]}]}`))
	}))
	defer srv.Close()

	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL)
	if _, err := s.Scrape(context.Background()); err == nil {
		t.Fatal("Scrape() with a credential lacking endDateTime: expected error, got nil")
	}
}

func TestGraphScraper_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL)
	if _, err := s.Scrape(context.Background()); err == nil {
		t.Fatal("Scrape() with a non-JSON body: expected error, got nil")
	}
}

func TestGraphScraper_Unreachable(t *testing.T) {
	s := NewGraphScraper(staticTokens{token: "tok-1"}, &http.Client{Timeout: time.Second}, "http://127.0.0.1:1")
	if _, err := s.Scrape(context.Background()); err == nil {
		t.Fatal("Scrape() against a closed port: expected error, got nil")
	}
}

func TestGraphScraper_Ready(t *testing.T) {
	ok := NewGraphScraper(staticTokens{token: "tok"}, http.DefaultClient, "https://graph.example.com")
	if msg, err := ok.Ready(context.Background()); err != nil || msg != "Ok" {
		t.Errorf("Ready() = %q, %v; want Ok, nil", msg, err)
	}

	down := NewGraphScraper(staticTokens{err: errors.New("no token available")}, http.DefaultClient, "https://graph.example.com")
	if _, err := down.Ready(context.Background()); err == nil {
		t.Error("Ready() without a token: expected error, got nil")
	}
}

func TestNewHTTPClient_SetsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewHTTPClient(time.Second, "aasm-exporter/test")
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if ua != "aasm-exporter/test" {
		t.Errorf("User-Agent = %q, want aasm-exporter/test", ua)
	}
}

func TestGraphScraper_DuplicateKeyIDAcrossKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"appId":"a","displayName":"x",
			"passwordCredentials":[{"keyId":"k","endDateTime":"2025-01-01T00:00:00Z"}],
			"keyCredentials":[{"keyId":"k","endDateTime":"2026-01-01T00:00:00Z"}]}]}`))
	}))
	defer srv.Close()

	s := NewGraphScraper(staticTokens{token: "tok-1"}, srv.Client(), srv.URL)
	reg, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	mfs, _ := reg.Gather()

	// One series; the key credential comes last and wins.
	want := map[string]float64{
		"app_id=a,app_name=x,key_id=k": float64(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()),
	}
	if diff := cmp.Diff(want, gaugeValues(t, mfs)); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}
