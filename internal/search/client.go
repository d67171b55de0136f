// Package search keeps the Elasticsearch projection of the entity graph
// consistent with Postgres: one fine-grained document per geometry spec and
// one catalog document per (definition, build kit) group.
package search

import (
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
)

// Config controls the Elasticsearch client and index names.
type Config struct {
	Addresses  []string
	Username   string
	Password   string
	SpecIndex  string
	GroupIndex string

	// Transport overrides the HTTP transport, primarily for testing.
	Transport http.RoundTripper
}

// NewClient builds an Elasticsearch client with retry on the usual
// overload statuses.
func NewClient(cfg Config) (*elasticsearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("search.addresses is required")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{429, 502, 503, 504},
		MaxRetries:    3,
		Transport:     cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("build elasticsearch client: %w", err)
	}
	return client, nil
}
