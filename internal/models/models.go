package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Formato is the unit format of an order line.
type Formato string

const (
	FormatoBandeja Formato = "bandeja"
	FormatoGranel  Formato = "granel"
	FormatoPieza   Formato = "pieza"
	FormatoVacio   Formato = "vacio"
	FormatoOtro    Formato = "otro"
)

// LineaPedido is one line of an order. Lines are owned exclusively by one
// Pedido and are always written as part of the whole document.
type LineaPedido struct {
	Producto        string     `json:"producto"`
	Cantidad        float64    `json:"cantidad"`
	Formato         Formato    `json:"formato"`
	Peso            *float64   `json:"peso,omitempty"`
	CantidadEnviada *float64   `json:"cantidadEnviada,omitempty"`
	Lote            *string    `json:"lote,omitempty"`
	Comentario      string     `json:"comentario,omitempty"`
	Preparado       bool       `json:"preparado"`
	FechaEnvioLinea *time.Time `json:"fechaEnvioLinea,omitempty"`
}

// LineaList stores the ordered line list as a single jsonb column so that
// every write replaces the whole document, never a single line.
type LineaList []LineaPedido

// Value implements driver.Valuer
func (l LineaList) Value() (driver.Value, error) {
	if l == nil {
		l = LineaList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner
func (l *LineaList) Scan(value interface{}) error {
	if value == nil {
		*l = LineaList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return errors.Errorf("unsupported type for LineaList: %T", value)
	}
}

// Pedido represents an order flowing between a store and the factory.
type Pedido struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"_id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	LegacyID       string         `gorm:"index" json:"id,omitempty"`
	NumeroPedido   *int           `gorm:"uniqueIndex:idx_pedidos_tienda_numero" json:"numeroPedido,omitempty"`
	TiendaID       string         `gorm:"not null;index;uniqueIndex:idx_pedidos_tienda_numero" json:"tiendaId"`
	Estado         Estado         `gorm:"type:varchar(30);not null;index" json:"estado"`
	FechaCreacion  *time.Time     `json:"fechaCreacion,omitempty"`
	FechaEnvio     *time.Time     `json:"fechaEnvio,omitempty"`
	FechaRecepcion *time.Time     `json:"fechaRecepcion,omitempty"`
	Lineas         LineaList      `gorm:"type:jsonb" json:"lineas"`
	Version        int            `gorm:"not null;default:0" json:"version"`
	Exportado      bool           `gorm:"not null;default:false" json:"-"`
}

// EsDe reports whether the order belongs to the given store.
func (p *Pedido) EsDe(tiendaID string) bool {
	return p.TiendaID == tiendaID
}

// Coincide reports whether id matches the storage id or the legacy id.
func (p *Pedido) Coincide(id string) bool {
	if p.ID.String() == id {
		return true
	}
	return p.LegacyID != "" && p.LegacyID == id
}

// TipoAviso is the severity of a notice.
type TipoAviso string

const (
	AvisoInfo    TipoAviso = "info"
	AvisoWarning TipoAviso = "warning"
	AvisoError   TipoAviso = "error"
)

// StringList stores a list of store ids as jsonb.
type StringList []string

// Value implements driver.Valuer
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.Errorf("unsupported type for StringList: %T", value)
	}
}

// Contiene reports whether the list contains the given id.
func (s StringList) Contiene(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Aviso is a lightweight cross-store notification tied to an order event.
// Notices are mutated in place when a store acknowledges them and are never
// deleted.
type Aviso struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"_id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	TiendaID     string         `gorm:"not null;index" json:"tiendaId"`
	ReferenciaID string         `gorm:"index" json:"referenciaId"`
	Tipo         TipoAviso      `gorm:"type:varchar(20);not null" json:"tipo"`
	Texto        string         `gorm:"not null" json:"texto"`
	VistoPor     StringList     `gorm:"type:jsonb" json:"vistoPor"`
}

// VistoPorTienda reports whether the store has acknowledged the notice.
func (a *Aviso) VistoPorTienda(tiendaID string) bool {
	return a.VistoPor.Contiene(tiendaID)
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Pedido{},
		&Aviso{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
