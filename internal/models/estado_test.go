package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestPuedeTransicionar(t *testing.T) {
	// Forward moves and same-state rewrites
	require.True(t, PuedeTransicionar(EstadoBorrador, EstadoEnviado))
	require.True(t, PuedeTransicionar(EstadoEnviado, EstadoPreparado))
	require.True(t, PuedeTransicionar(EstadoPreparado, EstadoEnviadoTienda))
	require.True(t, PuedeTransicionar(EstadoEnviado, EstadoEnviado))
	require.True(t, PuedeTransicionar(EstadoEnviadoTienda, EstadoEnviadoTienda))

	// Skipping states forward is allowed
	require.True(t, PuedeTransicionar(EstadoBorrador, EstadoEnviadoTienda))

	// Backward moves are not
	require.False(t, PuedeTransicionar(EstadoEnviado, EstadoBorrador))
	require.False(t, PuedeTransicionar(EstadoEnviadoTienda, EstadoPreparado))

	// Unknown target is rejected, unknown current normalizes forward
	require.False(t, PuedeTransicionar(EstadoBorrador, Estado("pendiente")))
	require.True(t, PuedeTransicionar(Estado("legacy"), EstadoEnviado))
}

func TestAplicarTransicionEnviado(t *testing.T) {
	ahora := time.Now()
	pedido := &Pedido{
		Estado: EstadoBorrador,
		Lineas: LineaList{{Producto: "chorizo", Cantidad: 3, Formato: FormatoGranel}},
	}

	err := pedido.AplicarTransicion(EstadoEnviado, ahora)
	require.NoError(t, err)
	require.Equal(t, EstadoEnviado, pedido.Estado)
	require.NotNil(t, pedido.FechaCreacion)
	require.Equal(t, ahora, *pedido.FechaCreacion)

	// Sending does not touch shipping fields
	require.Nil(t, pedido.FechaEnvio)
	require.Nil(t, pedido.Lineas[0].CantidadEnviada)
	require.Nil(t, pedido.Lineas[0].Lote)
}

func TestAplicarTransicionPreparadoDefaultsLineas(t *testing.T) {
	ahora := time.Now()
	lote := "L-77"
	enviada := 1.5
	pedido := &Pedido{
		Estado: EstadoEnviado,
		Lineas: LineaList{
			{Producto: "morcilla", Cantidad: 2, Formato: FormatoBandeja},
			{Producto: "lomo", Cantidad: 4, Formato: FormatoPieza, CantidadEnviada: &enviada, Lote: &lote},
		},
	}

	err := pedido.AplicarTransicion(EstadoPreparado, ahora)
	require.NoError(t, err)
	require.NotNil(t, pedido.FechaEnvio)

	// First line had no shipping detail: defaults kick in
	require.NotNil(t, pedido.Lineas[0].CantidadEnviada)
	require.Equal(t, 2.0, *pedido.Lineas[0].CantidadEnviada)
	require.NotNil(t, pedido.Lineas[0].Lote)
	require.Equal(t, "", *pedido.Lineas[0].Lote)
	require.Equal(t, pedido.FechaEnvio, pedido.Lineas[0].FechaEnvioLinea)

	// Second line already had values: they are preserved
	require.Equal(t, 1.5, *pedido.Lineas[1].CantidadEnviada)
	require.Equal(t, "L-77", *pedido.Lineas[1].Lote)
}

func TestAplicarTransicionEnviadoTienda(t *testing.T) {
	ahora := time.Now()
	pedido := &Pedido{
		Estado: EstadoPreparado,
		Lineas: LineaList{{Producto: "panceta", Cantidad: 1, Formato: FormatoVacio}},
	}

	err := pedido.AplicarTransicion(EstadoEnviadoTienda, ahora)
	require.NoError(t, err)
	require.NotNil(t, pedido.FechaEnvio)
	require.NotNil(t, pedido.FechaRecepcion)
	require.False(t, pedido.FechaRecepcion.Before(*pedido.FechaEnvio))

	// Re-entering the state refreshes the receipt timestamp but keeps the
	// original shipping timestamp.
	envioOriginal := *pedido.FechaEnvio
	despues := ahora.Add(time.Minute)
	err = pedido.AplicarTransicion(EstadoEnviadoTienda, despues)
	require.NoError(t, err)
	require.Equal(t, envioOriginal, *pedido.FechaEnvio)
	require.Equal(t, despues, *pedido.FechaRecepcion)
}

func TestAplicarTransicionBackwardRejected(t *testing.T) {
	pedido := &Pedido{Estado: EstadoPreparado}

	err := pedido.AplicarTransicion(EstadoEnviado, time.Now())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransicionInvalida))

	// The order is untouched on rejection
	require.Equal(t, EstadoPreparado, pedido.Estado)
	require.Nil(t, pedido.FechaEnvio)
}

func TestCoincide(t *testing.T) {
	pedido := &Pedido{LegacyID: "pedido-legacy-9"}
	pedido.ID = uuid.New()

	require.True(t, pedido.Coincide(pedido.ID.String()))
	require.True(t, pedido.Coincide("pedido-legacy-9"))
	require.False(t, pedido.Coincide("otro"))
}

func TestVistoPorTienda(t *testing.T) {
	aviso := &Aviso{TiendaID: "tienda1", VistoPor: StringList{"tienda1"}}

	require.True(t, aviso.VistoPorTienda("tienda1"))
	require.False(t, aviso.VistoPorTienda("tienda2"))
}
