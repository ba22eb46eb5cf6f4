// Package outcome counts scrape results in a registry that outlives any
// single scrape, and merges it with each scrape's own registry.
package outcome
