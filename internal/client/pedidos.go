package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/models"
)

// GestorPedidos holds the in-memory order list for one panel (the factory
// panel or one store panel) and mediates every mutation through the REST
// endpoints, while accepting asynchronous overwrites from the relay.
//
// Every line mutation rewrites the full document; there is no line-level
// patch. All writes are unversioned, so the last writer wins.
type GestorPedidos struct {
	mu       sync.RWMutex
	pedidos  []models.Pedido
	rest     *restClient
	avisador Avisador
	tiendaID string
	fabrica  bool
}

// NewGestorPedidos creates an order manager for a panel. In factory mode
// every relay event applies; in store mode only events for the configured
// store do.
func NewGestorPedidos(cfg config.ClienteConfig, avisador Avisador, httpClient *http.Client) *GestorPedidos {
	if avisador == nil {
		avisador = LogAvisador{}
	}
	return &GestorPedidos{
		rest:     newRESTClient(cfg.BaseURL, httpClient),
		avisador: avisador,
		tiendaID: cfg.TiendaID,
		fabrica:  cfg.ModoFabrica,
	}
}

// Pedidos returns a snapshot of the current in-memory list
func (g *GestorPedidos) Pedidos() []models.Pedido {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Pedido, len(g.pedidos))
	copy(out, g.pedidos)
	return out
}

// Fetch retrieves all orders (filtered by store in store mode) and replaces
// the in-memory list. On failure the prior state is left untouched and a
// warning is surfaced.
func (g *GestorPedidos) Fetch(ctx context.Context) error {
	filtro := ""
	if !g.fabrica {
		filtro = g.tiendaID
	}
	pedidos, err := g.rest.listPedidos(ctx, filtro)
	if err != nil {
		log.Warn().Err(err).Msg("failed to fetch pedidos")
		g.avisador.Advertencia("No se pudieron cargar los pedidos")
		return err
	}

	g.mu.Lock()
	g.pedidos = pedidos
	g.mu.Unlock()
	return nil
}

// ChangeStatus writes a new estado for the order. Status-dependent side
// effects (numeroPedido, send/receive dates, line defaults) are applied by
// the server; the in-memory entry is replaced with the server's response.
func (g *GestorPedidos) ChangeStatus(ctx context.Context, id string, estado models.Estado) error {
	pedido, ok := g.buscar(id)
	if !ok {
		g.avisador.Advertencia("Pedido no encontrado")
		return errors.Errorf("pedido %s not found", id)
	}

	doc := pedido
	doc.Estado = estado
	return g.persistir(ctx, &doc)
}

// ChangeLineStatus flips one line's prepared flag and persists the whole
// order.
func (g *GestorPedidos) ChangeLineStatus(ctx context.Context, id string, lineIndex int, preparado bool) error {
	pedido, ok := g.buscar(id)
	if !ok {
		g.avisador.Advertencia("Pedido no encontrado")
		return errors.Errorf("pedido %s not found", id)
	}
	if lineIndex < 0 || lineIndex >= len(pedido.Lineas) {
		g.avisador.Advertencia("Linea de pedido no encontrada")
		return errors.Errorf("linea %d out of range", lineIndex)
	}

	doc := pedido
	doc.Lineas = copiaLineas(pedido.Lineas)
	doc.Lineas[lineIndex].Preparado = preparado
	return g.persistir(ctx, &doc)
}

// CambiosLinea is a partial line edit; nil fields are left unchanged.
type CambiosLinea struct {
	Producto        *string
	Cantidad        *float64
	Formato         *models.Formato
	Peso            *float64
	CantidadEnviada *float64
	Lote            *string
	Comentario      *string
	Preparado       *bool
}

// ChangeLineDetail merges cambios into one line and persists the whole
// order document.
func (g *GestorPedidos) ChangeLineDetail(ctx context.Context, id string, lineIndex int, cambios CambiosLinea) error {
	pedido, ok := g.buscar(id)
	if !ok {
		g.avisador.Advertencia("Pedido no encontrado")
		return errors.Errorf("pedido %s not found", id)
	}
	if lineIndex < 0 || lineIndex >= len(pedido.Lineas) {
		g.avisador.Advertencia("Linea de pedido no encontrada")
		return errors.Errorf("linea %d out of range", lineIndex)
	}

	doc := pedido
	doc.Lineas = copiaLineas(pedido.Lineas)
	linea := &doc.Lineas[lineIndex]
	if cambios.Producto != nil {
		linea.Producto = *cambios.Producto
	}
	if cambios.Cantidad != nil {
		linea.Cantidad = *cambios.Cantidad
	}
	if cambios.Formato != nil {
		linea.Formato = *cambios.Formato
	}
	if cambios.Peso != nil {
		linea.Peso = cambios.Peso
	}
	if cambios.CantidadEnviada != nil {
		linea.CantidadEnviada = cambios.CantidadEnviada
	}
	if cambios.Lote != nil {
		linea.Lote = cambios.Lote
	}
	if cambios.Comentario != nil {
		linea.Comentario = *cambios.Comentario
	}
	if cambios.Preparado != nil {
		linea.Preparado = *cambios.Preparado
	}
	return g.persistir(ctx, &doc)
}

// ReplaceLineas fully replaces the order's line list (the null-index form
// of the line edit) and persists the whole document.
func (g *GestorPedidos) ReplaceLineas(ctx context.Context, id string, lineas []models.LineaPedido) error {
	pedido, ok := g.buscar(id)
	if !ok {
		g.avisador.Advertencia("Pedido no encontrado")
		return errors.Errorf("pedido %s not found", id)
	}

	doc := pedido
	doc.Lineas = copiaLineas(lineas)
	return g.persistir(ctx, &doc)
}

// Create submits a new order. It requires a selected store context, the
// server assigns the sequential number, and the local list is NOT spliced:
// the entry arrives through the relay broadcast.
func (g *GestorPedidos) Create(ctx context.Context, pedido models.Pedido) error {
	if g.tiendaID == "" && !g.fabrica {
		g.avisador.Advertencia("Selecciona una tienda antes de crear un pedido")
		return errors.New("no tienda selected")
	}
	if pedido.TiendaID == "" {
		pedido.TiendaID = g.tiendaID
	}

	if _, err := g.rest.createPedido(ctx, &pedido); err != nil {
		log.Warn().Err(err).Msg("failed to create pedido")
		g.avisador.Advertencia("No se pudo crear el pedido")
		return err
	}
	return nil
}

// Modify is a direct passthrough to the update endpoint; the in-memory list
// is refreshed by the relay broadcast, not locally.
func (g *GestorPedidos) Modify(ctx context.Context, id string, doc models.Pedido) error {
	pedido, ok := g.buscar(id)
	if !ok {
		g.avisador.Advertencia("Pedido no encontrado")
		return errors.Errorf("pedido %s not found", id)
	}
	if _, err := g.rest.updatePedido(ctx, pedido.ID.String(), &doc); err != nil {
		log.Warn().Err(err).Msg("failed to modify pedido")
		g.avisador.Advertencia("No se pudo modificar el pedido")
		return err
	}
	return nil
}

// Delete is a direct passthrough to the delete endpoint
func (g *GestorPedidos) Delete(ctx context.Context, id string) error {
	pedido, ok := g.buscar(id)
	if !ok {
		g.avisador.Advertencia("Pedido no encontrado")
		return errors.Errorf("pedido %s not found", id)
	}
	if err := g.rest.deletePedido(ctx, pedido.ID.String()); err != nil {
		log.Warn().Err(err).Msg("failed to delete pedido")
		g.avisador.Advertencia("No se pudo eliminar el pedido")
		return err
	}
	return nil
}

// OnPedidoNuevo applies a creation broadcast
func (g *GestorPedidos) OnPedidoNuevo(pedido models.Pedido) {
	if g.ignora(&pedido) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsert(pedido)
}

// OnPedidoActualizado applies an update broadcast, replacing the matching
// entry wholesale. The originating manager receives its own events
// redundantly; applying them again is harmless.
func (g *GestorPedidos) OnPedidoActualizado(pedido models.Pedido) {
	if g.ignora(&pedido) {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.upsert(pedido)
}

// OnPedidoEliminado applies a deletion broadcast
func (g *GestorPedidos) OnPedidoEliminado(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.pedidos {
		if g.pedidos[i].Coincide(id) {
			g.pedidos = append(g.pedidos[:i], g.pedidos[i+1:]...)
			return
		}
	}
}

// OnPedidosInicial fully replaces local state from a reconnection snapshot
func (g *GestorPedidos) OnPedidosInicial(pedidos []models.Pedido) {
	filtrados := pedidos
	if !g.fabrica {
		filtrados = make([]models.Pedido, 0, len(pedidos))
		for _, p := range pedidos {
			if p.EsDe(g.tiendaID) {
				filtrados = append(filtrados, p)
			}
		}
	}
	g.mu.Lock()
	g.pedidos = filtrados
	g.mu.Unlock()
}

// persistir sends the full document and replaces the matching in-memory
// entry with the server's response.
func (g *GestorPedidos) persistir(ctx context.Context, doc *models.Pedido) error {
	updated, err := g.rest.updatePedido(ctx, doc.ID.String(), doc)
	if err != nil {
		log.Warn().Err(err).Str("pedido_id", doc.ID.String()).Msg("failed to update pedido")
		g.avisador.Advertencia("No se pudo guardar el pedido")
		return err
	}

	g.mu.Lock()
	g.upsert(*updated)
	g.mu.Unlock()
	return nil
}

// ignora reports whether a store-mode panel should drop the event
func (g *GestorPedidos) ignora(pedido *models.Pedido) bool {
	return !g.fabrica && !pedido.EsDe(g.tiendaID)
}

func (g *GestorPedidos) buscar(id string) (models.Pedido, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for i := range g.pedidos {
		if g.pedidos[i].Coincide(id) {
			return g.pedidos[i], true
		}
	}
	return models.Pedido{}, false
}

// upsert replaces the entry with the same storage id, or appends.
// Callers must hold the lock.
func (g *GestorPedidos) upsert(pedido models.Pedido) {
	for i := range g.pedidos {
		if g.pedidos[i].ID == pedido.ID {
			g.pedidos[i] = pedido
			return
		}
	}
	g.pedidos = append(g.pedidos, pedido)
}

func copiaLineas(lineas []models.LineaPedido) models.LineaList {
	out := make(models.LineaList, len(lineas))
	copy(out, lineas)
	return out
}
