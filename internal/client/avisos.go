package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/models"
)

// TiendaClientes is the pseudo-store of the customers panel. It has no
// notices; listing for it returns empty immediately without a request.
const TiendaClientes = "clientes"

// GestorAvisos tracks the pending notices for one store and their
// acknowledgment. New arrivals are detected both through the relay-driven
// refetch and through an independent polling timer; both paths converge in
// the single aplicar function so there is only one merge behavior.
type GestorAvisos struct {
	mu          sync.RWMutex
	pendientes  []models.Aviso
	ultimoVisto uuid.UUID
	rest        *restClient
	avisador    Avisador
	tiendaID    string
	pollEvery   time.Duration
	scheduler   gocron.Scheduler
}

// NewGestorAvisos creates a notice manager for a store panel
func NewGestorAvisos(cfg config.ClienteConfig, tiendaID string, avisador Avisador, httpClient *http.Client) *GestorAvisos {
	if avisador == nil {
		avisador = LogAvisador{}
	}
	return &GestorAvisos{
		rest:      newRESTClient(cfg.BaseURL, httpClient),
		avisador:  avisador,
		tiendaID:  tiendaID,
		pollEvery: cfg.AvisoPollEvery,
	}
}

// Pendientes returns a snapshot of the unacknowledged notices
func (g *GestorAvisos) Pendientes() []models.Aviso {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Aviso, len(g.pendientes))
	copy(out, g.pendientes)
	return out
}

// Fetch reloads the pending set from the server
func (g *GestorAvisos) Fetch(ctx context.Context) error {
	if g.tiendaID == TiendaClientes {
		g.mu.Lock()
		g.pendientes = nil
		g.mu.Unlock()
		return nil
	}

	avisos, err := g.rest.listAvisos(ctx, g.tiendaID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch avisos")
		g.avisador.Advertencia("No se pudieron cargar los avisos")
		return err
	}

	g.mu.Lock()
	g.pendientes = nil
	if len(avisos) > 0 {
		// The server lists newest first; everything in the response is
		// seen, so the poll must not re-announce any of it.
		g.ultimoVisto = avisos[0].ID
	}
	g.mu.Unlock()
	for i := range avisos {
		g.aplicar(&avisos[i], false)
	}
	return nil
}

// Crear persists one notice
func (g *GestorAvisos) Crear(ctx context.Context, aviso models.Aviso) error {
	if _, err := g.rest.createAviso(ctx, &aviso); err != nil {
		log.Warn().Err(err).Msg("failed to create aviso")
		g.avisador.Advertencia("No se pudo crear el aviso")
		return err
	}
	return nil
}

// CrearParaTiendas broadcasts a notice to several stores, one call per
// target store.
func (g *GestorAvisos) CrearParaTiendas(ctx context.Context, tiendas []string, base models.Aviso) error {
	for _, tienda := range tiendas {
		aviso := base
		aviso.TiendaID = tienda
		if err := g.Crear(ctx, aviso); err != nil {
			return err
		}
	}
	return nil
}

// Confirmar acknowledges a notice for this store and removes it from the
// local pending set. Other stores' pending sets are unaffected.
func (g *GestorAvisos) Confirmar(ctx context.Context, avisoID uuid.UUID) error {
	aviso, err := g.rest.marcarVisto(ctx, avisoID.String(), g.tiendaID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to acknowledge aviso")
		g.avisador.Advertencia("No se pudo confirmar el aviso")
		return err
	}
	g.aplicar(aviso, false)
	return nil
}

// StartPolling launches the interval-based fallback that re-fetches the
// most recent notice and compares its id against the last one seen,
// catching arrivals the relay missed.
func (g *GestorAvisos) StartPolling(ctx context.Context) error {
	if g.scheduler != nil {
		return errors.New("polling already started")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(g.pollEvery),
		gocron.NewTask(func() {
			g.poll(ctx)
		}),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	g.scheduler = scheduler
	return nil
}

// StopPolling shuts the fallback timer down
func (g *GestorAvisos) StopPolling() error {
	if g.scheduler == nil {
		return nil
	}
	err := g.scheduler.Shutdown()
	g.scheduler = nil
	return err
}

// poll is one fallback tick
func (g *GestorAvisos) poll(ctx context.Context) {
	if g.tiendaID == TiendaClientes {
		return
	}

	aviso, err := g.rest.ultimoAviso(ctx, g.tiendaID)
	if err != nil {
		// Silent: polling is a redundancy, the next tick retries.
		log.Debug().Err(err).Msg("aviso poll failed")
		return
	}

	g.mu.Lock()
	nuevo := aviso.ID != g.ultimoVisto
	g.ultimoVisto = aviso.ID
	g.mu.Unlock()

	g.aplicar(aviso, nuevo)
}

// aplicar is the single convergence point for both reconciliation paths
// (relay-driven refetch and poll-detected arrival). It inserts or removes
// the notice from the pending set according to its acknowledgment state and
// optionally surfaces a toast for a new arrival.
func (g *GestorAvisos) aplicar(aviso *models.Aviso, notificar bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if aviso.VistoPorTienda(g.tiendaID) {
		for i := range g.pendientes {
			if g.pendientes[i].ID == aviso.ID {
				g.pendientes = append(g.pendientes[:i], g.pendientes[i+1:]...)
				break
			}
		}
		return
	}

	replaced := false
	for i := range g.pendientes {
		if g.pendientes[i].ID == aviso.ID {
			g.pendientes[i] = *aviso
			replaced = true
			break
		}
	}
	if !replaced {
		g.pendientes = append(g.pendientes, *aviso)
	}

	if notificar {
		g.avisador.Notificar("Nuevo aviso: " + aviso.Texto)
	}
}
