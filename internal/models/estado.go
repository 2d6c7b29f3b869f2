package models

import (
	"time"

	"github.com/pkg/errors"
)

// Estado is the lifecycle state of an order.
type Estado string

const (
	// EstadoBorrador is a draft held on the store side, not yet submitted.
	EstadoBorrador Estado = "borrador"
	// EstadoEnviado means the order has been sent to the factory.
	EstadoEnviado Estado = "enviado"
	// EstadoPreparado means the factory has prepared the order.
	EstadoPreparado Estado = "preparado"
	// EstadoEnviadoTienda means the order has been shipped back to the store.
	EstadoEnviadoTienda Estado = "enviadoTienda"
)

// rango orders the states along the happy path.
var rango = map[Estado]int{
	EstadoBorrador:      0,
	EstadoEnviado:       1,
	EstadoPreparado:     2,
	EstadoEnviadoTienda: 3,
}

// Valido reports whether the estado is a known state.
func (e Estado) Valido() bool {
	_, ok := rango[e]
	return ok
}

// ErrTransicionInvalida is returned when a state write would move an order
// backwards or to an unknown state.
var ErrTransicionInvalida = errors.New("transicion de estado invalida")

// PuedeTransicionar reports whether the order may move from its current
// estado to nuevo. Forward moves and same-state rewrites are allowed
// (re-entering enviadoTienda is a documented quirk that refreshes the
// receipt timestamp); moves backwards are rejected.
func PuedeTransicionar(actual, nuevo Estado) bool {
	ra, ok := rango[actual]
	if !ok {
		// Unknown current state: only allow normalizing forward.
		ra = 0
	}
	rn, ok := rango[nuevo]
	if !ok {
		return false
	}
	return rn >= ra
}

// AplicarTransicion mutates the order with the side effects of moving to
// nuevo at the given time. numeroPedido assignment is the caller's job
// because it needs the store sequence.
//
//   - -> enviado: fechaCreacion is set if absent.
//   - -> preparado / enviadoTienda: fechaEnvio is set once; every line gets
//     cantidadEnviada (defaulted from cantidad), lote (defaulted to "") and
//     fechaEnvioLinea (defaulted from fechaEnvio).
//   - -> enviadoTienda: fechaRecepcion is set to ahora unconditionally,
//     overwriting any prior value.
func (p *Pedido) AplicarTransicion(nuevo Estado, ahora time.Time) error {
	if !PuedeTransicionar(p.Estado, nuevo) {
		return errors.Wrapf(ErrTransicionInvalida, "%s -> %s", p.Estado, nuevo)
	}

	p.Estado = nuevo

	if rango[nuevo] >= rango[EstadoEnviado] && p.FechaCreacion == nil {
		t := ahora
		p.FechaCreacion = &t
	}

	if nuevo == EstadoPreparado || nuevo == EstadoEnviadoTienda {
		if p.FechaEnvio == nil {
			t := ahora
			p.FechaEnvio = &t
		}
		for i := range p.Lineas {
			linea := &p.Lineas[i]
			if linea.CantidadEnviada == nil {
				c := linea.Cantidad
				linea.CantidadEnviada = &c
			}
			if linea.Lote == nil {
				vacio := ""
				linea.Lote = &vacio
			}
			if linea.FechaEnvioLinea == nil {
				linea.FechaEnvioLinea = p.FechaEnvio
			}
		}
	}

	if nuevo == EstadoEnviadoTienda {
		// Always the latest entry into this state, even on re-entry.
		t := ahora
		p.FechaRecepcion = &t
	}

	return nil
}
