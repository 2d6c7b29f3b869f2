package client

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/relay"
)

const inicialTimeout = 5 * time.Second

// Conexion holds a panel's live relay wiring
type Conexion struct {
	mu  sync.Mutex
	nc  *nats.Conn
	sub *relay.Subscriber
}

// ConectarRelay connects a panel's order manager to the relay: broadcast
// events flow into the manager, and on every (re)connect the full snapshot
// is requested to replace local state after the gap.
func ConectarRelay(cfg config.NATSConfig, gestor *GestorPedidos) (*Conexion, error) {
	c := &Conexion{}

	nc, err := relay.Connect(cfg, func() {
		c.mu.Lock()
		sub := c.sub
		c.mu.Unlock()
		if sub == nil {
			return
		}
		if err := sub.RequestInicial(gestor, inicialTimeout); err != nil {
			log.Warn().Err(err).Msg("failed to reload pedidos after reconnect")
		}
	})
	if err != nil {
		return nil, err
	}

	sub := relay.NewSubscriber(nc)
	if err := sub.Subscribe(gestor); err != nil {
		nc.Close()
		return nil, err
	}

	c.mu.Lock()
	c.nc = nc
	c.sub = sub
	c.mu.Unlock()

	if err := sub.RequestInicial(gestor, inicialTimeout); err != nil {
		// The server may not be answering yet; broadcasts still apply and
		// the next reconnect retries the snapshot.
		log.Warn().Err(err).Msg("failed to load initial pedidos snapshot")
	}

	return c, nil
}

// Cerrar drops the subscriptions and closes the connection
func (c *Conexion) Cerrar() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	if c.nc != nil {
		c.nc.Close()
	}
}
