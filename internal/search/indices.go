package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// specIndexBody defines the per-spec index. Model and family names go
// through an accent-folding analyzer so "Myśliwiec" matches "mysliwiec".
const specIndexBody = `{
	"settings": {
		"analysis": {
			"analyzer": {
				"bike_name_analyzer": {
					"type": "custom",
					"tokenizer": "standard",
					"filter": ["lowercase", "asciifolding"]
				}
			}
		}
	},
	"mappings": {
		"properties": {
			"id": {"type": "long"},
			"geometry_spec": {
				"properties": {
					"size_label": {"type": "keyword"},
					"stack_mm": {"type": "integer"},
					"reach_mm": {"type": "integer"}
				}
			},
			"definition": {
				"properties": {
					"model_name": {
						"type": "text",
						"analyzer": "bike_name_analyzer",
						"fields": {"keyword": {"type": "keyword"}}
					},
					"material": {"type": "keyword"},
					"material_group": {"type": "keyword"}
				}
			},
			"family": {
				"properties": {
					"brand_name": {"type": "keyword"},
					"family_name": {
						"type": "text",
						"analyzer": "bike_name_analyzer",
						"fields": {"keyword": {"type": "keyword"}}
					},
					"category": {"type": "keyword"}
				}
			}
		}
	}
}`

const groupIndexBody = `{
	"settings": {
		"analysis": {
			"analyzer": {
				"bike_name_analyzer": {
					"type": "custom",
					"tokenizer": "standard",
					"filter": ["lowercase", "asciifolding"]
				}
			}
		}
	},
	"mappings": {
		"properties": {
			"id": {"type": "keyword"},
			"family": {
				"properties": {
					"brand_name": {"type": "keyword"},
					"family_name": {
						"type": "text",
						"analyzer": "bike_name_analyzer",
						"fields": {"keyword": {"type": "keyword"}}
					},
					"category": {"type": "keyword"}
				}
			},
			"definition": {
				"properties": {
					"model_name": {
						"type": "text",
						"analyzer": "bike_name_analyzer",
						"fields": {"keyword": {"type": "keyword"}}
					},
					"material": {"type": "keyword"},
					"material_group": {"type": "keyword"}
				}
			},
			"build_kit": {
				"properties": {
					"name": {"type": "keyword"}
				}
			},
			"skus": {"type": "keyword"},
			"product_ids": {"type": "long"},
			"sizes": {"type": "keyword"},
			"colors": {"type": "keyword"}
		}
	}
}`

// EnsureIndices creates both indices when absent; existing indices are left
// alone.
func (s *Synchronizer) EnsureIndices(ctx context.Context) error {
	for index, body := range map[string]string{
		s.specIndex:  specIndexBody,
		s.groupIndex: groupIndexBody,
	} {
		if err := s.createIndex(ctx, index, body, false); err != nil {
			return err
		}
	}
	return nil
}

// RecreateIndices drops and recreates both indices; a full reindex follows.
func (s *Synchronizer) RecreateIndices(ctx context.Context) error {
	for index, body := range map[string]string{
		s.specIndex:  specIndexBody,
		s.groupIndex: groupIndexBody,
	} {
		if err := s.createIndex(ctx, index, body, true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synchronizer) createIndex(ctx context.Context, index, body string, recreate bool) error {
	if recreate {
		del := esapi.IndicesDeleteRequest{Index: []string{index}, IgnoreUnavailable: esapi.BoolPtr(true)}
		res, err := del.Do(ctx, s.es)
		if err != nil {
			return fmt.Errorf("delete index %s: %w", index, err)
		}
		res.Body.Close()
	}

	req := esapi.IndicesCreateRequest{Index: index, Body: strings.NewReader(body)}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 400 && !recreate {
			// Already exists.
			return nil
		}
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	return nil
}
