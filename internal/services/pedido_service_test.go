package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/metrics"
	"example.com/carniceria/pedidos/internal/models"
	"example.com/carniceria/pedidos/internal/repositories"
	"example.com/carniceria/pedidos/internal/tracing"
)

// Mock repositories for testing
type MockPedidoRepository struct {
	mock.Mock
}

func (m *MockPedidoRepository) Create(ctx context.Context, pedido *models.Pedido) error {
	args := m.Called(ctx, pedido)
	return args.Error(0)
}

func (m *MockPedidoRepository) Update(ctx context.Context, pedido *models.Pedido) error {
	args := m.Called(ctx, pedido)
	if args.Error(0) == nil {
		pedido.Version++
	}
	return args.Error(0)
}

func (m *MockPedidoRepository) UpdateWithVersion(ctx context.Context, pedido *models.Pedido, expectedVersion int) error {
	args := m.Called(ctx, pedido, expectedVersion)
	return args.Error(0)
}

func (m *MockPedidoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Pedido, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Pedido), args.Error(1)
}

func (m *MockPedidoRepository) List(ctx context.Context, tiendaID string) ([]models.Pedido, error) {
	args := m.Called(ctx, tiendaID)
	return args.Get(0).([]models.Pedido), args.Error(1)
}

func (m *MockPedidoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPedidoRepository) NextNumeroPedido(ctx context.Context, tiendaID string) (int, error) {
	args := m.Called(ctx, tiendaID)
	return args.Int(0), args.Error(1)
}

func (m *MockPedidoRepository) FindSinExportar(ctx context.Context, limit int) ([]models.Pedido, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Pedido), args.Error(1)
}

func (m *MockPedidoRepository) MarcarExportado(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockAvisoRepository struct {
	mock.Mock
}

func (m *MockAvisoRepository) Create(ctx context.Context, aviso *models.Aviso) error {
	args := m.Called(ctx, aviso)
	return args.Error(0)
}

func (m *MockAvisoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Aviso, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Aviso), args.Error(1)
}

func (m *MockAvisoRepository) ListByTienda(ctx context.Context, tiendaID string) ([]models.Aviso, error) {
	args := m.Called(ctx, tiendaID)
	return args.Get(0).([]models.Aviso), args.Error(1)
}

func (m *MockAvisoRepository) Ultimo(ctx context.Context, tiendaID string) (*models.Aviso, error) {
	args := m.Called(ctx, tiendaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Aviso), args.Error(1)
}

func (m *MockAvisoRepository) MarcarVisto(ctx context.Context, id uuid.UUID, tiendaID string) (*models.Aviso, error) {
	args := m.Called(ctx, id, tiendaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Aviso), args.Error(1)
}

type MockERPPublisher struct {
	mock.Mock
}

func (m *MockERPPublisher) PublishPedido(ctx context.Context, pedido *models.Pedido) error {
	args := m.Called(ctx, pedido)
	return args.Error(0)
}

func (m *MockERPPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestService(pedidoRepo *MockPedidoRepository, avisoRepo *MockAvisoRepository) *PedidoService {
	tracer, _ := tracing.NewTracer(config.TracingConfig{})
	return &PedidoService{
		pedidoRepo: pedidoRepo,
		avisoRepo:  avisoRepo,
		metrics:    metrics.NewMetrics(),
		tracer:     tracer,
	}
}

func TestCreatePedidoBorrador(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)

	service := newTestService(mockRepo, mockAvisos)

	pedido, err := service.Create(context.Background(), &models.Pedido{
		TiendaID: "tienda1",
		Lineas:   models.LineaList{{Producto: "chorizo", Cantidad: 2, Formato: models.FormatoGranel}},
	})

	require.NoError(t, err)
	require.Equal(t, models.EstadoBorrador, pedido.Estado)
	require.NotEqual(t, uuid.Nil, pedido.ID)

	// Drafts get no sequential number and no creation date
	require.Nil(t, pedido.NumeroPedido)
	require.Nil(t, pedido.FechaCreacion)

	mockRepo.AssertExpectations(t)
}

func TestCreatePedidoEnviadoAsignaNumero(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)

	mockRepo.On("NextNumeroPedido", mock.Anything, "tienda1").Return(7, nil)
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)
	mockAvisos.On("Create", mock.Anything, mock.AnythingOfType("*models.Aviso")).Return(nil)

	service := newTestService(mockRepo, mockAvisos)

	pedido, err := service.Create(context.Background(), &models.Pedido{
		TiendaID: "tienda1",
		Estado:   models.EstadoEnviado,
		Lineas:   models.LineaList{{Producto: "morcilla", Cantidad: 1, Formato: models.FormatoBandeja}},
	})

	require.NoError(t, err)
	require.Equal(t, models.EstadoEnviado, pedido.Estado)
	require.NotNil(t, pedido.NumeroPedido)
	require.Equal(t, 7, *pedido.NumeroPedido)
	require.NotNil(t, pedido.FechaCreacion)

	// Submitting raises a factory-bound aviso
	mockAvisos.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(a *models.Aviso) bool {
		return a.TiendaID == TiendaFabrica
	}))

	mockRepo.AssertExpectations(t)
}

func TestCreatePedidoSinTienda(t *testing.T) {
	service := newTestService(new(MockPedidoRepository), new(MockAvisoRepository))

	_, err := service.Create(context.Background(), &models.Pedido{})
	require.Error(t, err)
}

func TestUpdateLastWriterWins(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)

	id := uuid.New()
	numero := 4
	existing := &models.Pedido{
		ID:           id,
		TiendaID:     "tienda1",
		NumeroPedido: &numero,
		Estado:       models.EstadoEnviado,
		Version:      3,
		Lineas:       models.LineaList{{Producto: "lomo", Cantidad: 5, Formato: models.FormatoPieza}},
	}

	mockRepo.On("GetByID", mock.Anything, id).Return(existing, nil)
	mockRepo.On("Update", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)

	service := newTestService(mockRepo, mockAvisos)

	// An unversioned write replaces the document regardless of version
	updated, err := service.Update(context.Background(), id, &models.Pedido{
		Estado: models.EstadoEnviado,
		Lineas: models.LineaList{{Producto: "lomo", Cantidad: 2, Formato: models.FormatoPieza}},
	}, nil)

	require.NoError(t, err)
	require.Equal(t, 2.0, updated.Lineas[0].Cantidad)
	require.Equal(t, "tienda1", updated.TiendaID)

	// A same-state rewrite keeps the assigned number
	require.Equal(t, 4, *updated.NumeroPedido)
	mockRepo.AssertNotCalled(t, "NextNumeroPedido", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "UpdateWithVersion", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestUpdateWithVersionConflict(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)

	id := uuid.New()
	numero := 9
	existing := &models.Pedido{
		ID:           id,
		TiendaID:     "tienda1",
		NumeroPedido: &numero,
		Estado:       models.EstadoEnviado,
		Version:      4,
	}

	mockRepo.On("GetByID", mock.Anything, id).Return(existing, nil)
	mockRepo.On("UpdateWithVersion", mock.Anything, mock.AnythingOfType("*models.Pedido"), 3).
		Return(repositories.ErrConflict)

	service := newTestService(mockRepo, mockAvisos)

	version := 3
	_, err := service.Update(context.Background(), id, &models.Pedido{
		Estado: models.EstadoEnviado,
	}, &version)

	require.ErrorIs(t, err, repositories.ErrConflict)
	mockRepo.AssertExpectations(t)
}

func TestUpdateBackwardTransitionRejected(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)

	id := uuid.New()
	existing := &models.Pedido{
		ID:       id,
		TiendaID: "tienda1",
		Estado:   models.EstadoPreparado,
	}

	mockRepo.On("GetByID", mock.Anything, id).Return(existing, nil)

	service := newTestService(mockRepo, mockAvisos)

	_, err := service.Update(context.Background(), id, &models.Pedido{
		Estado: models.EstadoBorrador,
	}, nil)

	require.ErrorIs(t, err, models.ErrTransicionInvalida)
	mockRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateEnviadoTiendaExporta(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)
	mockERP := new(MockERPPublisher)

	id := uuid.New()
	numero := 12
	existing := &models.Pedido{
		ID:           id,
		TiendaID:     "tienda1",
		NumeroPedido: &numero,
		Estado:       models.EstadoPreparado,
		Lineas:       models.LineaList{{Producto: "panceta", Cantidad: 3, Formato: models.FormatoVacio}},
	}

	mockRepo.On("GetByID", mock.Anything, id).Return(existing, nil)
	mockRepo.On("Update", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)
	mockRepo.On("MarcarExportado", mock.Anything, id).Return(nil)
	mockAvisos.On("Create", mock.Anything, mock.AnythingOfType("*models.Aviso")).Return(nil)
	mockERP.On("PublishPedido", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)

	service := newTestService(mockRepo, mockAvisos)
	service.erp = mockERP

	updated, err := service.Update(context.Background(), id, &models.Pedido{
		Estado: models.EstadoEnviadoTienda,
		Lineas: existing.Lineas,
	}, nil)

	require.NoError(t, err)
	require.Equal(t, models.EstadoEnviadoTienda, updated.Estado)
	require.NotNil(t, updated.FechaRecepcion)
	require.NotNil(t, updated.Lineas[0].CantidadEnviada)
	require.True(t, updated.Exportado)

	// Shipping raises the store-bound aviso
	mockAvisos.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(a *models.Aviso) bool {
		return a.TiendaID == "tienda1"
	}))

	mockERP.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestExportarPendientes(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockERP := new(MockERPPublisher)

	pendiente := models.Pedido{
		ID:       uuid.New(),
		TiendaID: "tienda2",
		Estado:   models.EstadoEnviadoTienda,
	}

	mockRepo.On("FindSinExportar", mock.Anything, 100).Return([]models.Pedido{pendiente}, nil)
	mockRepo.On("MarcarExportado", mock.Anything, pendiente.ID).Return(nil)
	mockERP.On("PublishPedido", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)

	service := newTestService(mockRepo, new(MockAvisoRepository))
	service.erp = mockERP

	err := service.ExportarPendientes(context.Background())
	require.NoError(t, err)

	mockERP.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestUpdateReentradaEnviadoTiendaRefrescaRecepcion(t *testing.T) {
	mockRepo := new(MockPedidoRepository)
	mockAvisos := new(MockAvisoRepository)

	id := uuid.New()
	antes := time.Now().Add(-time.Hour)
	existing := &models.Pedido{
		ID:             id,
		TiendaID:       "tienda1",
		Estado:         models.EstadoEnviadoTienda,
		FechaEnvio:     &antes,
		FechaRecepcion: &antes,
		Exportado:      true,
	}

	mockRepo.On("GetByID", mock.Anything, id).Return(existing, nil)
	mockRepo.On("Update", mock.Anything, mock.AnythingOfType("*models.Pedido")).Return(nil)

	service := newTestService(mockRepo, mockAvisos)

	// The panel resends the full document, prior dates included
	updated, err := service.Update(context.Background(), id, &models.Pedido{
		Estado:         models.EstadoEnviadoTienda,
		FechaEnvio:     &antes,
		FechaRecepcion: &antes,
	}, nil)

	require.NoError(t, err)

	// Same-state rewrite: no new aviso, no re-export, but the receipt
	// timestamp moves forward.
	require.True(t, updated.FechaRecepcion.After(antes))
	require.Equal(t, antes, *updated.FechaEnvio)
	mockAvisos.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	mockRepo.AssertExpectations(t)
}
