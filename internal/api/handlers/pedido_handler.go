package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/internal/models"
	"example.com/carniceria/pedidos/internal/repositories"
	"example.com/carniceria/pedidos/internal/services"
	"example.com/carniceria/pedidos/internal/tracing"
)

// PedidoHandler handles order HTTP requests
type PedidoHandler struct {
	pedidoService *services.PedidoService
	tracer        tracing.Tracer
}

// NewPedidoHandler creates a new order handler
func NewPedidoHandler(pedidoService *services.PedidoService, tracer tracing.Tracer) *PedidoHandler {
	return &PedidoHandler{
		pedidoService: pedidoService,
		tracer:        tracer,
	}
}

// HandleList returns all orders, optionally filtered by store
func (h *PedidoHandler) HandleList(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-list-pedidos")
	defer h.tracer.EndTransaction(txn)

	tiendaID := c.Query("tiendaId")
	h.tracer.AddAttribute(txn, "tienda_id", tiendaID)

	pedidos, err := h.pedidoService.List(c.Request.Context(), tiendaID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pedidos")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pedidos)
}

// HandleGet returns one order by storage id
func (h *PedidoHandler) HandleGet(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pedido id"})
		return
	}

	pedido, err := h.pedidoService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pedido not found"})
			return
		}
		log.Error().Err(err).Msg("Failed to get pedido")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pedido)
}

// HandleCreate persists a new order document
func (h *PedidoHandler) HandleCreate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-pedido")
	defer h.tracer.EndTransaction(txn)

	var pedido models.Pedido
	if err := c.ShouldBindJSON(&pedido); err != nil {
		log.Error().Err(err).Msg("Invalid pedido body")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.pedidoService.Create(c.Request.Context(), &pedido)
	if err != nil {
		if errors.Is(err, models.ErrTransicionInvalida) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Msg("Failed to create pedido")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// HandleUpdate replaces the full order document. An optional ?version=
// query turns the write into a version-checked one that fails with 409
// instead of silently overwriting a concurrent write.
func (h *PedidoHandler) HandleUpdate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-update-pedido")
	defer h.tracer.EndTransaction(txn)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pedido id"})
		return
	}

	var doc models.Pedido
	if err := c.ShouldBindJSON(&doc); err != nil {
		log.Error().Err(err).Msg("Invalid pedido body")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expectedVersion *int
	if raw := c.Query("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
			return
		}
		expectedVersion = &v
	}

	updated, err := h.pedidoService.Update(c.Request.Context(), id, &doc, expectedVersion)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "pedido not found"})
		case errors.Is(err, repositories.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "pedido was modified by another writer"})
		case errors.Is(err, models.ErrTransicionInvalida):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Msg("Failed to update pedido")
			h.tracer.RecordError(txn, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, updated)
}

// HandleDelete removes an order
func (h *PedidoHandler) HandleDelete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pedido id"})
		return
	}

	if err := h.pedidoService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pedido not found"})
			return
		}
		log.Error().Err(err).Msg("Failed to delete pedido")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}

// HandleSearch queries the order history index by store and date range
func (h *PedidoHandler) HandleSearch(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-search-pedidos")
	defer h.tracer.EndTransaction(txn)

	tiendaID := c.Query("tiendaId")

	var desde, hasta *time.Time
	if raw := c.Query("desde"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid desde timestamp"})
			return
		}
		desde = &t
	}
	if raw := c.Query("hasta"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hasta timestamp"})
			return
		}
		hasta = &t
	}

	docs, err := h.pedidoService.Search(c.Request.Context(), tiendaID, desde, hasta)
	if err != nil {
		log.Error().Err(err).Msg("Failed to search pedidos")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, docs)
}

// RegisterRoutes registers the handler's routes
func (h *PedidoHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/pedidos", h.HandleList)
	api.POST("/pedidos", h.HandleCreate)
	api.GET("/pedidos/search", h.HandleSearch)
	api.GET("/pedidos/:id", h.HandleGet)
	api.PUT("/pedidos/:id", h.HandleUpdate)
	api.DELETE("/pedidos/:id", h.HandleDelete)
}
