// Package scraper turns the Microsoft Graph applications listing into
// Prometheus samples.
//
// Scraper is the interface the HTTP surface depends on: Scrape builds a fresh
// registry, Ready reports whether scraping can authenticate, Name labels the
// landing page. GraphScraper is the only implementation.
//
// Every scrape drains all pages before building its registry, so a failure on
// any page yields an error and no samples. Outbound HTTP goes through the
// client from NewHTTPClient, which the token sources share.
package scraper
