package services

import (
	"context"

	"github.com/google/uuid"

	"example.com/carniceria/pedidos/internal/metrics"
	"example.com/carniceria/pedidos/internal/models"
	"example.com/carniceria/pedidos/internal/repositories"
)

// AvisoService handles cross-store notice logic
type AvisoService struct {
	avisoRepo repositories.AvisoRepository
	metrics   *metrics.Metrics
}

// NewAvisoService creates a new notice service
func NewAvisoService(avisoRepo repositories.AvisoRepository, metricsCollector *metrics.Metrics) *AvisoService {
	return &AvisoService{
		avisoRepo: avisoRepo,
		metrics:   metricsCollector,
	}
}

// List returns all notices targeted at a store
func (s *AvisoService) List(ctx context.Context, tiendaID string) ([]models.Aviso, error) {
	return s.avisoRepo.ListByTienda(ctx, tiendaID)
}

// Ultimo returns the most recent notice for a store. The polling fallback
// compares its id against the last one seen.
func (s *AvisoService) Ultimo(ctx context.Context, tiendaID string) (*models.Aviso, error) {
	return s.avisoRepo.Ultimo(ctx, tiendaID)
}

// Create persists a new notice. Broadcasting to several stores is one call
// per target store, never a single multi-target write.
func (s *AvisoService) Create(ctx context.Context, aviso *models.Aviso) (*models.Aviso, error) {
	if err := s.avisoRepo.Create(ctx, aviso); err != nil {
		s.metrics.RecordError("aviso_create")
		return nil, err
	}
	s.metrics.RecordSuccess("aviso_create")
	s.metrics.IncrementCounter("avisos_creados")
	return aviso, nil
}

// Acknowledge appends the store id to the notice's acknowledgment list
func (s *AvisoService) Acknowledge(ctx context.Context, id uuid.UUID, tiendaID string) (*models.Aviso, error) {
	aviso, err := s.avisoRepo.MarcarVisto(ctx, id, tiendaID)
	if err != nil {
		s.metrics.RecordError("aviso_visto")
		return nil, err
	}
	s.metrics.RecordSuccess("aviso_visto")
	return aviso, nil
}
