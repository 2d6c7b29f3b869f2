package relay

import (
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/config"
)

// Relay subjects. Every successful order mutation is rebroadcast to all
// connected panels; delivery is best effort, with no acks or sequencing.
const (
	SubjectPedidoNuevo       = "pedidos.nuevo"
	SubjectPedidoActualizado = "pedidos.actualizado"
	SubjectPedidoEliminado   = "pedidos.eliminado"
	SubjectPedidosInicial    = "pedidos.inicial"
)

// EliminadoEvent is the payload of a deletion broadcast
type EliminadoEvent struct {
	ID string `json:"id"`
}

// Connect opens a NATS connection with logging reconnect handlers. The
// onReconnect callback lets clients reconcile missed events after a gap.
func Connect(cfg config.NATSConfig, onReconnect func()) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			// Silent for the user: reconciliation happens on reconnect or
			// on the next fetch.
			log.Warn().Err(err).Msg("relay disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("relay reconnected")
			if onReconnect != nil {
				onReconnect()
			}
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return nc, nil
}
