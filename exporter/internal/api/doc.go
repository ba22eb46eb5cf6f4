// Package api implements the exporter's HTTP surface.
//
// New(scraper, tracker) returns an http.Handler that serves:
//
//	GET /         landing page linking /status and /metrics
//	GET /status   200 "Ok" when a token is cached, 503 with the reason otherwise
//	GET /metrics  scrape status, token and runtime metrics, plus credential
//	              expiry samples when the scrape succeeded
//
// Non-GET methods get 405 and unknown paths 404. /metrics answers 200 even
// when the scrape fails; only an encoding error produces 500.
package api
