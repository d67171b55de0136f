package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/extractor"
	"github.com/velofit/framesearch/internal/metrics"
	"github.com/velofit/framesearch/internal/store"
)

// Reader is the slice of the relational store the synchronizer projects
// from. *store.Store satisfies it.
type Reader interface {
	SpecByID(ctx context.Context, specID int64) (store.SpecProjection, error)
	GroupByPair(ctx context.Context, definitionID, buildKitID int64) (store.GroupProjection, error)
	AllSpecIDs(ctx context.Context) ([]int64, error)
	AllGroupPairs(ctx context.Context) ([][2]int64, error)
}

// Synchronizer mirrors committed entity-graph state into the two search
// indices. It always reads back through the store rather than trusting the
// caller's view, so documents reflect merged state (colors, sizes).
type Synchronizer struct {
	es         *elasticsearch.Client
	reader     Reader
	specIndex  string
	groupIndex string
	logger     *zap.Logger
}

func NewSynchronizer(es *elasticsearch.Client, reader Reader, cfg Config, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	specIndex := cfg.SpecIndex
	if specIndex == "" {
		specIndex = "frameset_geometry"
	}
	groupIndex := cfg.GroupIndex
	if groupIndex == "" {
		groupIndex = "bike_products"
	}
	return &Synchronizer{
		es:         es,
		reader:     reader,
		specIndex:  specIndex,
		groupIndex: groupIndex,
		logger:     logger,
	}
}

type specDoc struct {
	ID           int64          `json:"id"`
	GeometrySpec specGeometry   `json:"geometry_spec"`
	Definition   specDefinition `json:"definition"`
	Family       docFamily      `json:"family"`
}

type specGeometry struct {
	SizeLabel string `json:"size_label"`
	StackMM   int    `json:"stack_mm"`
	ReachMM   int    `json:"reach_mm"`
}

type specDefinition struct {
	ModelName     string `json:"model_name"`
	Material      string `json:"material"`
	MaterialGroup string `json:"material_group"`
}

type docFamily struct {
	BrandName  string `json:"brand_name"`
	FamilyName string `json:"family_name"`
	Category   string `json:"category"`
}

type groupDoc struct {
	ID         string         `json:"id"`
	Family     docFamily      `json:"family"`
	Definition specDefinition `json:"definition"`
	BuildKit   groupBuildKit  `json:"build_kit"`
	SKUs       []string       `json:"skus"`
	ProductIDs []int64        `json:"product_ids"`
	Sizes      []string       `json:"sizes"`
	Colors     []string       `json:"colors"`
}

type groupBuildKit struct {
	Name string `json:"name"`
}

func specDocID(specID int64) string {
	return fmt.Sprintf("spec_%d", specID)
}

func groupDocID(definitionID, buildKitID int64) string {
	return fmt.Sprintf("def_%d_bk_%d", definitionID, buildKitID)
}

// SyncSpec reprojects one geometry spec document.
func (s *Synchronizer) SyncSpec(ctx context.Context, specID int64) error {
	proj, err := s.reader.SpecByID(ctx, specID)
	if err != nil {
		metrics.IndexSyncFailuresTotal.WithLabelValues(s.specIndex).Inc()
		return fmt.Errorf("load spec %d: %w", specID, err)
	}
	doc := specDoc{
		ID: proj.SpecID,
		GeometrySpec: specGeometry{
			SizeLabel: proj.SizeLabel,
			StackMM:   proj.StackMM,
			ReachMM:   proj.ReachMM,
		},
		Definition: specDefinition{
			ModelName:     proj.Definition,
			Material:      proj.Material,
			MaterialGroup: extractor.MaterialGroup(proj.Material),
		},
		Family: docFamily{
			BrandName:  proj.BrandName,
			FamilyName: proj.FamilyName,
			Category:   proj.Category,
		},
	}
	return s.index(ctx, s.specIndex, specDocID(specID), doc)
}

// SyncGroup reprojects one (definition, build kit) catalog document. A group
// with no surviving products is deleted instead.
func (s *Synchronizer) SyncGroup(ctx context.Context, definitionID, buildKitID int64) error {
	proj, err := s.reader.GroupByPair(ctx, definitionID, buildKitID)
	if errors.Is(err, store.ErrNotFound) {
		return s.deleteDoc(ctx, s.groupIndex, groupDocID(definitionID, buildKitID))
	}
	if err != nil {
		metrics.IndexSyncFailuresTotal.WithLabelValues(s.groupIndex).Inc()
		return fmt.Errorf("load group (%d, %d): %w", definitionID, buildKitID, err)
	}
	doc := groupDoc{
		ID: groupDocID(definitionID, buildKitID),
		Family: docFamily{
			BrandName:  proj.BrandName,
			FamilyName: proj.FamilyName,
			Category:   proj.Category,
		},
		Definition: specDefinition{
			ModelName:     proj.Definition,
			Material:      proj.Material,
			MaterialGroup: extractor.MaterialGroup(proj.Material),
		},
		BuildKit:   groupBuildKit{Name: proj.KitName},
		SKUs:       proj.SKUs,
		ProductIDs: proj.ProductIDs,
		Sizes:      proj.Sizes,
		Colors:     proj.Colors,
	}
	return s.index(ctx, s.groupIndex, doc.ID, doc)
}

// Apply projects a batch of committed mutations, deduplicating specs and
// group pairs so a family of sizes costs one group write. The first failure
// stops the batch; the populator treats it as deferrable.
func (s *Synchronizer) Apply(ctx context.Context, muts []store.Mutation) error {
	seenSpec := make(map[int64]bool)
	seenPair := make(map[[2]int64]bool)
	for _, m := range muts {
		if !seenSpec[m.SpecID] {
			seenSpec[m.SpecID] = true
			if err := s.SyncSpec(ctx, m.SpecID); err != nil {
				return err
			}
		}
		pair := [2]int64{m.DefinitionID, m.BuildKitID}
		if !seenPair[pair] {
			seenPair[pair] = true
			if err := s.SyncGroup(ctx, m.DefinitionID, m.BuildKitID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reindex drops both indices and rebuilds every document from Postgres.
func (s *Synchronizer) Reindex(ctx context.Context) error {
	if err := s.RecreateIndices(ctx); err != nil {
		return err
	}

	specIDs, err := s.reader.AllSpecIDs(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	for _, id := range specIDs {
		if err := s.SyncSpec(ctx, id); err != nil {
			return err
		}
	}

	pairs, err := s.reader.AllGroupPairs(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	for _, pair := range pairs {
		if err := s.SyncGroup(ctx, pair[0], pair[1]); err != nil {
			return err
		}
	}

	s.logger.Info("reindex complete",
		zap.Int("specs", len(specIDs)),
		zap.Int("groups", len(pairs)))
	return nil
}

func (s *Synchronizer) index(ctx context.Context, index, docID string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", index, docID, err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		metrics.IndexSyncFailuresTotal.WithLabelValues(index).Inc()
		return fmt.Errorf("index %s/%s: %w", index, docID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		metrics.IndexSyncFailuresTotal.WithLabelValues(index).Inc()
		return fmt.Errorf("index %s/%s: %s", index, docID, res.Status())
	}

	metrics.IndexSyncsTotal.WithLabelValues(index, "upsert").Inc()
	s.logger.Debug("indexed document",
		zap.String("index", index),
		zap.String("doc_id", docID))
	return nil
}

func (s *Synchronizer) deleteDoc(ctx context.Context, index, docID string) error {
	req := esapi.DeleteRequest{
		Index:      index,
		DocumentID: docID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.es)
	if err != nil {
		metrics.IndexSyncFailuresTotal.WithLabelValues(index).Inc()
		return fmt.Errorf("delete %s/%s: %w", index, docID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		metrics.IndexSyncFailuresTotal.WithLabelValues(index).Inc()
		return fmt.Errorf("delete %s/%s: %s", index, docID, res.Status())
	}

	metrics.IndexSyncsTotal.WithLabelValues(index, "delete").Inc()
	return nil
}
