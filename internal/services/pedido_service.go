package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/internal/cache"
	"example.com/carniceria/pedidos/internal/messaging"
	"example.com/carniceria/pedidos/internal/metrics"
	"example.com/carniceria/pedidos/internal/models"
	"example.com/carniceria/pedidos/internal/relay"
	"example.com/carniceria/pedidos/internal/repositories"
	"example.com/carniceria/pedidos/internal/search"
	"example.com/carniceria/pedidos/internal/tracing"
)

// TiendaFabrica is the pseudo-store id of the factory panel. Avisos for the
// factory are targeted at it like at any other store.
const TiendaFabrica = "fabrica"

// PedidoService handles order lifecycle business logic
type PedidoService struct {
	pedidoRepo repositories.PedidoRepository
	avisoRepo  repositories.AvisoRepository
	cache      *cache.RedisCache
	elastic    *search.ElasticClient
	erp        messaging.ERPPublisher
	relay      relay.Publisher
	metrics    *metrics.Metrics
	tracer     tracing.Tracer
}

// NewPedidoService creates a new order service. cache, elastic, erp and
// relay may be nil; the service degrades to plain persistence.
func NewPedidoService(
	pedidoRepo repositories.PedidoRepository,
	avisoRepo repositories.AvisoRepository,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	erp messaging.ERPPublisher,
	relayPub relay.Publisher,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *PedidoService {
	return &PedidoService{
		pedidoRepo: pedidoRepo,
		avisoRepo:  avisoRepo,
		cache:      redisCache,
		elastic:    elasticClient,
		erp:        erp,
		relay:      relayPub,
		metrics:    metricsCollector,
		tracer:     tracer,
	}
}

// List returns all orders, optionally filtered by store
func (s *PedidoService) List(ctx context.Context, tiendaID string) ([]models.Pedido, error) {
	if s.cache != nil {
		pedidos, err := s.cache.GetPedidos(ctx, tiendaID)
		if err == nil {
			return pedidos, nil
		}
	}

	pedidos, err := s.pedidoRepo.List(ctx, tiendaID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetPedidos(ctx, tiendaID, pedidos); err != nil {
			log.Warn().Err(err).Msg("failed to cache pedido list")
		}
	}
	return pedidos, nil
}

// Get returns an order by its storage id
func (s *PedidoService) Get(ctx context.Context, id uuid.UUID) (*models.Pedido, error) {
	return s.pedidoRepo.GetByID(ctx, id)
}

// Create persists a new order. The server assigns the sequential order
// number on creation directly in estado enviado; drafts get none.
func (s *PedidoService) Create(ctx context.Context, pedido *models.Pedido) (*models.Pedido, error) {
	txn := s.tracer.StartTransaction("create-pedido")
	defer s.tracer.EndTransaction(txn)

	if pedido.TiendaID == "" {
		return nil, errors.New("pedido requires a tienda")
	}
	if pedido.ID == uuid.Nil {
		pedido.ID = uuid.New()
	}
	if pedido.Lineas == nil {
		pedido.Lineas = models.LineaList{}
	}

	destino := pedido.Estado
	if destino == "" {
		destino = models.EstadoBorrador
	}
	if !destino.Valido() {
		return nil, errors.Wrapf(models.ErrTransicionInvalida, "estado desconocido %q", destino)
	}

	ahora := time.Now()
	pedido.Estado = models.EstadoBorrador
	if destino != models.EstadoBorrador {
		if err := s.asignarNumero(ctx, pedido); err != nil {
			s.tracer.RecordError(txn, err)
			return nil, err
		}
		if err := pedido.AplicarTransicion(destino, ahora); err != nil {
			s.tracer.RecordError(txn, err)
			return nil, err
		}
	}

	if err := s.pedidoRepo.Create(ctx, pedido); err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("pedido_create")
		return nil, err
	}
	s.metrics.RecordSuccess("pedido_create")
	s.metrics.IncrementCounter("pedidos_creados")

	log.Info().
		Str("pedido_id", pedido.ID.String()).
		Str("tienda_id", pedido.TiendaID).
		Str("estado", string(pedido.Estado)).
		Msg("Pedido created successfully")

	s.afterMutation(ctx, pedido, models.EstadoBorrador)

	if s.relay != nil {
		if err := s.relay.PedidoNuevo(ctx, pedido); err != nil {
			log.Warn().Err(err).Msg("failed to broadcast pedido_nuevo")
		} else {
			s.metrics.IncrementCounter("relay_eventos")
		}
	}

	return pedido, nil
}

// Update replaces the whole order document. Line-level patches are not
// supported; the caller always sends the complete line list. When
// expectedVersion is non-nil the write is rejected with ErrConflict if a
// concurrent writer got there first; otherwise last writer wins.
func (s *PedidoService) Update(ctx context.Context, id uuid.UUID, doc *models.Pedido, expectedVersion *int) (*models.Pedido, error) {
	txn := s.tracer.StartTransaction("update-pedido")
	defer s.tracer.EndTransaction(txn)

	existing, err := s.pedidoRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	destino := doc.Estado
	if destino == "" {
		destino = existing.Estado
	}

	estadoPrevio := existing.Estado

	updated := *doc
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.Exportado = existing.Exportado
	updated.Estado = existing.Estado
	if updated.TiendaID == "" {
		updated.TiendaID = existing.TiendaID
	}
	if updated.NumeroPedido == nil {
		updated.NumeroPedido = existing.NumeroPedido
	}
	if updated.Lineas == nil {
		updated.Lineas = models.LineaList{}
	}

	if destino == models.EstadoEnviado && updated.NumeroPedido == nil {
		if err := s.asignarNumero(ctx, &updated); err != nil {
			s.tracer.RecordError(txn, err)
			return nil, err
		}
	}

	if err := updated.AplicarTransicion(destino, time.Now()); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if expectedVersion != nil {
		err = s.pedidoRepo.UpdateWithVersion(ctx, &updated, *expectedVersion)
	} else {
		updated.Version = existing.Version
		err = s.pedidoRepo.Update(ctx, &updated)
	}
	if err != nil {
		s.tracer.RecordError(txn, err)
		s.metrics.RecordError("pedido_update")
		return nil, err
	}
	s.metrics.RecordSuccess("pedido_update")
	s.metrics.IncrementCounter("pedidos_actualizados")

	s.afterMutation(ctx, &updated, estadoPrevio)

	if s.relay != nil {
		if err := s.relay.PedidoActualizado(ctx, &updated); err != nil {
			log.Warn().Err(err).Msg("failed to broadcast pedido_actualizado")
		} else {
			s.metrics.IncrementCounter("relay_eventos")
		}
	}

	return &updated, nil
}

// Delete removes an order and broadcasts the deletion
func (s *PedidoService) Delete(ctx context.Context, id uuid.UUID) error {
	pedido, err := s.pedidoRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.pedidoRepo.Delete(ctx, id); err != nil {
		s.metrics.RecordError("pedido_delete")
		return err
	}
	s.metrics.RecordSuccess("pedido_delete")
	s.metrics.IncrementCounter("pedidos_eliminados")

	s.invalidate(ctx, pedido.TiendaID)

	if s.relay != nil {
		if err := s.relay.PedidoEliminado(ctx, id.String()); err != nil {
			log.Warn().Err(err).Msg("failed to broadcast pedido_eliminado")
		} else {
			s.metrics.IncrementCounter("relay_eventos")
		}
	}
	return nil
}

// Search queries the order history index by store and date range
func (s *PedidoService) Search(ctx context.Context, tiendaID string, desde, hasta *time.Time) ([]map[string]interface{}, error) {
	if s.elastic == nil {
		return nil, errors.New("search is not available")
	}
	return s.elastic.SearchPedidos(ctx, tiendaID, desde, hasta)
}

// ExportarPendientes publishes shipped orders that missed their ERP export
// to the queue. It runs from the worker as a fallback mechanism; the happy
// path exports inline during the enviadoTienda transition.
func (s *PedidoService) ExportarPendientes(ctx context.Context) error {
	pedidos, err := s.pedidoRepo.FindSinExportar(ctx, 100)
	if err != nil {
		return errors.Wrap(err, "failed to find pedidos sin exportar")
	}

	log.Info().Msgf("Found %d pedidos pending ERP export", len(pedidos))

	for i := range pedidos {
		pedido := &pedidos[i]
		if err := s.exportar(ctx, pedido); err != nil {
			log.Error().
				Err(err).
				Str("pedido_id", pedido.ID.String()).
				Msg("Failed to export pedido during reconciliation")
			continue
		}
		log.Info().
			Str("pedido_id", pedido.ID.String()).
			Msg("Pedido exported during reconciliation")
	}
	return nil
}

// afterMutation applies the non-atomic side channels of a persisted order
// mutation: cache invalidation, transition avisos, history indexing and ERP
// export. Every step is independent; a crash between them leaves the order
// persisted without its side effects, reconciled later by the worker.
func (s *PedidoService) afterMutation(ctx context.Context, pedido *models.Pedido, estadoPrevio models.Estado) {
	s.invalidate(ctx, pedido.TiendaID)

	cambio := pedido.Estado != estadoPrevio

	if cambio && pedido.Estado == models.EstadoEnviado {
		s.crearAviso(ctx, pedido, TiendaFabrica,
			fmt.Sprintf("Pedido %s de la tienda %s recibido en fabrica", numeroDe(pedido), pedido.TiendaID))
	}

	if pedido.Estado == models.EstadoEnviadoTienda {
		if cambio {
			s.crearAviso(ctx, pedido, pedido.TiendaID,
				fmt.Sprintf("Pedido %s enviado a tienda", numeroDe(pedido)))
		}
		if s.elastic != nil {
			if err := s.elastic.IndexPedido(ctx, pedido); err != nil {
				log.Warn().Err(err).Str("pedido_id", pedido.ID.String()).Msg("failed to index pedido")
			}
		}
		if !pedido.Exportado {
			if err := s.exportar(ctx, pedido); err != nil {
				log.Warn().Err(err).Str("pedido_id", pedido.ID.String()).Msg("ERP export failed, worker will retry")
			}
		}
	}
}

// exportar publishes one order to the ERP queue and flags it
func (s *PedidoService) exportar(ctx context.Context, pedido *models.Pedido) error {
	if s.erp == nil {
		return errors.New("ERP publisher is not available")
	}
	if err := s.erp.PublishPedido(ctx, pedido); err != nil {
		s.metrics.RecordError("erp_export")
		return errors.Wrap(err, "failed to publish pedido to ERP queue")
	}
	if err := s.pedidoRepo.MarcarExportado(ctx, pedido.ID); err != nil {
		return err
	}
	pedido.Exportado = true
	s.metrics.RecordSuccess("erp_export")
	return nil
}

// crearAviso writes the transition notice. Independent of the order write:
// no transaction spans both.
func (s *PedidoService) crearAviso(ctx context.Context, pedido *models.Pedido, tiendaID, texto string) {
	aviso := &models.Aviso{
		TiendaID:     tiendaID,
		ReferenciaID: pedido.ID.String(),
		Tipo:         models.AvisoInfo,
		Texto:        texto,
	}
	if err := s.avisoRepo.Create(ctx, aviso); err != nil {
		log.Warn().
			Err(err).
			Str("pedido_id", pedido.ID.String()).
			Str("tienda_id", tiendaID).
			Msg("failed to create transition aviso")
	}
}

func (s *PedidoService) asignarNumero(ctx context.Context, pedido *models.Pedido) error {
	numero, err := s.pedidoRepo.NextNumeroPedido(ctx, pedido.TiendaID)
	if err != nil {
		return err
	}
	pedido.NumeroPedido = &numero
	return nil
}

func (s *PedidoService) invalidate(ctx context.Context, tiendaID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePedidos(ctx, tiendaID); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate pedido cache")
	}
}

func numeroDe(pedido *models.Pedido) string {
	if pedido.NumeroPedido == nil {
		return pedido.ID.String()
	}
	return fmt.Sprintf("%d", *pedido.NumeroPedido)
}
