package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/internal/models"
	"example.com/carniceria/pedidos/internal/repositories"
	"example.com/carniceria/pedidos/internal/services"
	"example.com/carniceria/pedidos/internal/tracing"
)

var validate = validator.New()

// AvisoHandler handles notice HTTP requests
type AvisoHandler struct {
	avisoService *services.AvisoService
	tracer       tracing.Tracer
}

// NewAvisoHandler creates a new notice handler
func NewAvisoHandler(avisoService *services.AvisoService, tracer tracing.Tracer) *AvisoHandler {
	return &AvisoHandler{
		avisoService: avisoService,
		tracer:       tracer,
	}
}

// CrearAvisoRequest is the payload to create a notice
type CrearAvisoRequest struct {
	TiendaID     string `json:"tiendaId" validate:"required"`
	ReferenciaID string `json:"referenciaId"`
	Tipo         string `json:"tipo" validate:"required,oneof=info warning error"`
	Texto        string `json:"texto" validate:"required"`
}

// VistoRequest is the payload to acknowledge a notice
type VistoRequest struct {
	TiendaID string `json:"tiendaId" validate:"required"`
}

// HandleList returns all notices for a store
func (h *AvisoHandler) HandleList(c *gin.Context) {
	avisos, err := h.avisoService.List(c.Request.Context(), c.Query("tiendaId"))
	if err != nil {
		log.Error().Err(err).Msg("Failed to list avisos")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, avisos)
}

// HandleUltimo returns the most recent notice for a store, for the
// out-of-band polling fallback.
func (h *AvisoHandler) HandleUltimo(c *gin.Context) {
	aviso, err := h.avisoService.Ultimo(c.Request.Context(), c.Query("tiendaId"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no avisos"})
			return
		}
		log.Error().Err(err).Msg("Failed to get ultimo aviso")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, aviso)
}

// HandleCreate persists a new notice
func (h *AvisoHandler) HandleCreate(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-aviso")
	defer h.tracer.EndTransaction(txn)

	var req CrearAvisoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	aviso := &models.Aviso{
		TiendaID:     req.TiendaID,
		ReferenciaID: req.ReferenciaID,
		Tipo:         models.TipoAviso(req.Tipo),
		Texto:        req.Texto,
	}

	created, err := h.avisoService.Create(c.Request.Context(), aviso)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create aviso")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

// HandleVisto appends the acknowledging store to the notice
func (h *AvisoHandler) HandleVisto(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid aviso id"})
		return
	}

	var req VistoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	aviso, err := h.avisoService.Acknowledge(c.Request.Context(), id, req.TiendaID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "aviso not found"})
			return
		}
		log.Error().Err(err).Msg("Failed to acknowledge aviso")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, aviso)
}

// RegisterRoutes registers the handler's routes
func (h *AvisoHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.GET("/avisos", h.HandleList)
	api.GET("/avisos/ultimo", h.HandleUltimo)
	api.POST("/avisos", h.HandleCreate)
	api.PATCH("/avisos/:id/visto", h.HandleVisto)
}
