package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// Ensure FabricService implements the interface.
var _ driving.FabricService = (*FabricService)(nil)

// BuildGate serializes exclusive fabric operations with builds.
type BuildGate interface {
	Acquire(fabricID string) error
	Release(fabricID string)
	Running(fabricID string) bool
}

// FabricService manages fabric records.
type FabricService struct {
	store    driven.FabricStore
	index    driven.VectorIndex
	resolver driven.EmbeddingResolver
	gate     BuildGate
	defaults domain.PipelineSettings
	now      func() time.Time
}

// NewFabricService creates a fabric service. The resolver is optional and
// only used to reject unknown embedding models up front.
func NewFabricService(
	store driven.FabricStore,
	index driven.VectorIndex,
	resolver driven.EmbeddingResolver,
	gate BuildGate,
	defaults domain.PipelineSettings,
) *FabricService {
	return &FabricService{
		store:    store,
		index:    index,
		resolver: resolver,
		gate:     gate,
		defaults: defaults,
		now:      time.Now,
	}
}

// Create validates spec and stores a new draft fabric.
func (s *FabricService) Create(ctx context.Context, spec driving.FabricSpec) (*domain.Fabric, error) {
	fabric := &domain.Fabric{
		ID:     uuid.NewString(),
		Status: domain.FabricStatusDraft,
	}
	s.apply(fabric, spec)
	if err := s.validate(fabric); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, fabric); err != nil {
		return nil, fmt.Errorf("create fabric: %w", err)
	}
	logger.Info("created fabric %s (%s)", fabric.ID, fabric.Name)
	return fabric, nil
}

// Get returns a fabric by ID.
func (s *FabricService) Get(ctx context.Context, id string) (*domain.Fabric, error) {
	return s.store.Get(ctx, id)
}

// List returns all fabrics.
func (s *FabricService) List(ctx context.Context) ([]*domain.Fabric, error) {
	return s.store.List(ctx)
}

// Update changes a fabric's settings. Zero values in spec keep the current
// value. Changing anything that affects the index sends a ready fabric back
// to draft so it is rebuilt before the next query.
func (s *FabricService) Update(ctx context.Context, id string, spec driving.FabricSpec) (*domain.Fabric, error) {
	if s.gate != nil && s.gate.Running(id) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBuildInProgress, id)
	}

	return s.store.Update(ctx, id, func(f *domain.Fabric) error {
		if s.buildLeaseHeld(f) {
			return fmt.Errorf("%w: fabric %s is %s", domain.ErrBuildInProgress, id, f.Status)
		}

		before := indexShape(f)
		s.applyChanges(f, spec)
		if err := s.validate(f); err != nil {
			return err
		}
		if f.Status == domain.FabricStatusReady && indexShape(f) != before {
			logger.Info("fabric %s index settings changed, rebuild required", id)
			f.Status = domain.FabricStatusDraft
		}
		return nil
	})
}

// Delete removes a fabric and its vector collection. It fails while a
// build is in flight. A building status whose heartbeat went stale is left
// over from a crashed process and does not block.
func (s *FabricService) Delete(ctx context.Context, id string) error {
	if s.gate != nil {
		if err := s.gate.Acquire(id); err != nil {
			return err
		}
		defer s.gate.Release(id)
	}

	fabric, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.buildLeaseHeld(fabric) {
		return fmt.Errorf("%w: fabric %s is %s", domain.ErrBuildInProgress, id, fabric.Status)
	}

	if s.index != nil {
		if err := s.index.DeleteCollection(ctx, fabric.Collection()); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete collection %s: %w", fabric.Collection(), err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("deleted fabric %s", id)
	return nil
}

func (s *FabricService) buildLeaseHeld(f *domain.Fabric) bool {
	return f.BuildLeaseHeld(s.now(), domain.BuildStaleAfter(s.defaults.Heartbeat))
}

func (s *FabricService) apply(f *domain.Fabric, spec driving.FabricSpec) {
	f.Name = strings.TrimSpace(spec.Name)
	f.Description = spec.Description
	f.Source = spec.Source
	f.ChunkSize = orInt(spec.ChunkSize, s.defaults.ChunkSize)
	f.ChunkOverlap = orInt(spec.ChunkOverlap, s.defaults.ChunkOverlap)
	clampDefaultOverlap(f, spec)
	f.EmbeddingModel = orString(spec.EmbeddingModel, s.defaults.EmbeddingModel)
	f.ChatModel = orString(spec.ChatModel, s.defaults.ChatModel)
	f.CollectionName = strings.TrimSpace(spec.CollectionName)
}

func (s *FabricService) applyChanges(f *domain.Fabric, spec driving.FabricSpec) {
	f.Name = orString(strings.TrimSpace(spec.Name), f.Name)
	f.Description = orString(spec.Description, f.Description)
	if spec.Source.Kind != domain.SourceKindNone {
		f.Source = spec.Source
	}
	f.ChunkSize = orInt(spec.ChunkSize, f.ChunkSize)
	f.ChunkOverlap = orInt(spec.ChunkOverlap, f.ChunkOverlap)
	clampDefaultOverlap(f, spec)
	f.EmbeddingModel = orString(spec.EmbeddingModel, f.EmbeddingModel)
	f.ChatModel = orString(spec.ChatModel, f.ChatModel)
	f.CollectionName = orString(strings.TrimSpace(spec.CollectionName), f.CollectionName)
}

func (s *FabricService) validate(f *domain.Fabric) error {
	if f.Name == "" {
		return fmt.Errorf("%w: fabric name is required", domain.ErrInvalidInput)
	}
	if !f.Source.Kind.IsValid() {
		return fmt.Errorf("%w: unknown source kind %q", domain.ErrConfiguration, f.Source.Kind)
	}
	if err := domain.ValidateChunking(f.ChunkSize, f.ChunkOverlap); err != nil {
		return err
	}
	if s.resolver != nil {
		if _, err := s.resolver.Resolve(f.EmbeddingModel); err != nil {
			return fmt.Errorf("%w: embedding model %q: %w", domain.ErrConfiguration, f.EmbeddingModel, err)
		}
	}
	return nil
}

// clampDefaultOverlap drops an inherited overlap that no longer fits a
// smaller explicit chunk size.
func clampDefaultOverlap(f *domain.Fabric, spec driving.FabricSpec) {
	if spec.ChunkOverlap == 0 && f.ChunkOverlap >= f.ChunkSize {
		f.ChunkOverlap = 0
	}
}

// indexShape captures the settings baked into a built collection.
func indexShape(f *domain.Fabric) string {
	return fmt.Sprintf("%d/%d/%s/%s/%s/%v", f.ChunkSize, f.ChunkOverlap, f.EmbeddingModel,
		f.Collection(), f.Source.Kind, f.Source.Options)
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
