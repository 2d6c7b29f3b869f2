package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/carniceria/pedidos/internal/models"
)

// PedidoRepository defines the interface for order persistence
type PedidoRepository interface {
	Create(ctx context.Context, pedido *models.Pedido) error
	Update(ctx context.Context, pedido *models.Pedido) error
	UpdateWithVersion(ctx context.Context, pedido *models.Pedido, expectedVersion int) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Pedido, error)
	List(ctx context.Context, tiendaID string) ([]models.Pedido, error)
	Delete(ctx context.Context, id uuid.UUID) error
	NextNumeroPedido(ctx context.Context, tiendaID string) (int, error)
	FindSinExportar(ctx context.Context, limit int) ([]models.Pedido, error)
	MarcarExportado(ctx context.Context, id uuid.UUID) error
}

// pedidoRepository implements PedidoRepository
type pedidoRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewPedidoRepository creates a new order repository
func NewPedidoRepository(db *gorm.DB, readOnlyDB *gorm.DB) PedidoRepository {
	return &pedidoRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create creates a new order
func (r *pedidoRepository) Create(ctx context.Context, pedido *models.Pedido) error {
	if err := r.db.WithContext(ctx).Create(pedido).Error; err != nil {
		return errors.Wrap(err, "failed to create pedido")
	}
	return nil
}

// Update replaces the whole order document. Last writer wins.
func (r *pedidoRepository) Update(ctx context.Context, pedido *models.Pedido) error {
	pedido.Version++
	if err := r.db.WithContext(ctx).Save(pedido).Error; err != nil {
		return errors.Wrap(err, "failed to update pedido")
	}
	return nil
}

// UpdateWithVersion replaces the order document only if the stored version
// still matches expectedVersion, returning ErrConflict otherwise.
func (r *pedidoRepository) UpdateWithVersion(ctx context.Context, pedido *models.Pedido, expectedVersion int) error {
	pedido.Version = expectedVersion + 1
	result := r.db.WithContext(ctx).
		Model(&models.Pedido{}).
		Where("id = ? AND version = ?", pedido.ID, expectedVersion).
		Select("*").
		Omit("created_at").
		Updates(pedido)

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update pedido")
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// GetByID gets an order by its storage id
func (r *pedidoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Pedido, error) {
	var pedido models.Pedido
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&pedido).Error
	if err != nil {
		if isRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get pedido by id")
	}
	return &pedido, nil
}

// List returns all orders, optionally filtered by store
func (r *pedidoRepository) List(ctx context.Context, tiendaID string) ([]models.Pedido, error) {
	var pedidos []models.Pedido
	query := r.readOnlyDB.WithContext(ctx).Order("created_at DESC")
	if tiendaID != "" {
		query = query.Where("tienda_id = ?", tiendaID)
	}
	if err := query.Find(&pedidos).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list pedidos")
	}
	return pedidos, nil
}

// Delete removes an order
func (r *pedidoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Pedido{})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to delete pedido")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextNumeroPedido returns the next sequential order number for a store.
// Draft orders have no number, so NULLs never collide with the sequence.
func (r *pedidoRepository) NextNumeroPedido(ctx context.Context, tiendaID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&models.Pedido{}).
		Where("tienda_id = ?", tiendaID).
		Select("COALESCE(MAX(numero_pedido), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, errors.Wrap(err, "failed to compute next numero de pedido")
	}
	return max + 1, nil
}

// FindSinExportar returns shipped orders not yet published to the ERP queue
func (r *pedidoRepository) FindSinExportar(ctx context.Context, limit int) ([]models.Pedido, error) {
	var pedidos []models.Pedido
	err := r.readOnlyDB.WithContext(ctx).
		Where("estado = ? AND exportado = ?", models.EstadoEnviadoTienda, false).
		Limit(limit).
		Find(&pedidos).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pedidos sin exportar")
	}
	return pedidos, nil
}

// MarcarExportado marks an order as published to the ERP queue
func (r *pedidoRepository) MarcarExportado(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Pedido{}).
		Where("id = ?", id).
		Update("exportado", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark pedido as exportado")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AvisoRepository defines the interface for notice persistence
type AvisoRepository interface {
	Create(ctx context.Context, aviso *models.Aviso) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Aviso, error)
	ListByTienda(ctx context.Context, tiendaID string) ([]models.Aviso, error)
	Ultimo(ctx context.Context, tiendaID string) (*models.Aviso, error)
	MarcarVisto(ctx context.Context, id uuid.UUID, tiendaID string) (*models.Aviso, error)
}

// avisoRepository implements AvisoRepository
type avisoRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAvisoRepository creates a new notice repository
func NewAvisoRepository(db *gorm.DB, readOnlyDB *gorm.DB) AvisoRepository {
	return &avisoRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create creates a new notice
func (r *avisoRepository) Create(ctx context.Context, aviso *models.Aviso) error {
	if aviso.ID == uuid.Nil {
		aviso.ID = uuid.New()
	}
	if aviso.VistoPor == nil {
		aviso.VistoPor = models.StringList{}
	}
	if err := r.db.WithContext(ctx).Create(aviso).Error; err != nil {
		return errors.Wrap(err, "failed to create aviso")
	}
	return nil
}

// GetByID gets a notice by id
func (r *avisoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Aviso, error) {
	var aviso models.Aviso
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&aviso).Error
	if err != nil {
		if isRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get aviso by id")
	}
	return &aviso, nil
}

// ListByTienda returns all notices targeted at a store
func (r *avisoRepository) ListByTienda(ctx context.Context, tiendaID string) ([]models.Aviso, error) {
	var avisos []models.Aviso
	query := r.readOnlyDB.WithContext(ctx).Order("created_at DESC")
	if tiendaID != "" {
		query = query.Where("tienda_id = ?", tiendaID)
	}
	if err := query.Find(&avisos).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list avisos")
	}
	return avisos, nil
}

// Ultimo returns the most recent notice for a store, or ErrNotFound
func (r *avisoRepository) Ultimo(ctx context.Context, tiendaID string) (*models.Aviso, error) {
	var aviso models.Aviso
	query := r.readOnlyDB.WithContext(ctx).Order("created_at DESC")
	if tiendaID != "" {
		query = query.Where("tienda_id = ?", tiendaID)
	}
	if err := query.First(&aviso).Error; err != nil {
		if isRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get ultimo aviso")
	}
	return &aviso, nil
}

// MarcarVisto appends the store id to the notice's acknowledgment list.
// The notice is mutated, not replaced.
func (r *avisoRepository) MarcarVisto(ctx context.Context, id uuid.UUID, tiendaID string) (*models.Aviso, error) {
	var aviso models.Aviso
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&aviso).Error; err != nil {
			if isRecordNotFoundError(err) {
				return ErrNotFound
			}
			return errors.Wrap(err, "failed to get aviso")
		}
		if aviso.VistoPor.Contiene(tiendaID) {
			return nil
		}
		aviso.VistoPor = append(aviso.VistoPor, tiendaID)
		aviso.UpdatedAt = time.Now()
		return errors.Wrap(tx.Save(&aviso).Error, "failed to save aviso")
	})
	if err != nil {
		return nil, err
	}
	return &aviso, nil
}
