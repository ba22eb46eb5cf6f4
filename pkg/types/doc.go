// Package types defines the directory records fetched from Microsoft Graph.
// The JSON tags match the Graph v1.0 application resource so the scraper can
// decode listing pages straight into these values. They live for a single
// scrape cycle and are never cached.
package types
