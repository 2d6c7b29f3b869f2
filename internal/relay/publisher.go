package relay

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/internal/models"
)

// Publisher broadcasts order mutations to all connected panels
type Publisher interface {
	PedidoNuevo(ctx context.Context, pedido *models.Pedido) error
	PedidoActualizado(ctx context.Context, pedido *models.Pedido) error
	PedidoEliminado(ctx context.Context, id string) error
	Close()
}

// natsPublisher implements Publisher over a NATS connection
type natsPublisher struct {
	nc *nats.Conn
}

// NewPublisher creates a publisher on an established connection
func NewPublisher(nc *nats.Conn) Publisher {
	return &natsPublisher{nc: nc}
}

func (p *natsPublisher) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s event", subject)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "failed to publish %s event", subject)
	}
	return nil
}

// PedidoNuevo broadcasts a created order
func (p *natsPublisher) PedidoNuevo(_ context.Context, pedido *models.Pedido) error {
	return p.publish(SubjectPedidoNuevo, pedido)
}

// PedidoActualizado broadcasts the full updated order document
func (p *natsPublisher) PedidoActualizado(_ context.Context, pedido *models.Pedido) error {
	return p.publish(SubjectPedidoActualizado, pedido)
}

// PedidoEliminado broadcasts a deletion, carrying only the id
func (p *natsPublisher) PedidoEliminado(_ context.Context, id string) error {
	return p.publish(SubjectPedidoEliminado, EliminadoEvent{ID: id})
}

// Close drains the connection
func (p *natsPublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		log.Warn().Err(err).Msg("failed to drain relay connection")
	}
}

// ListFunc supplies the current full order list for inicial replies
type ListFunc func(ctx context.Context) ([]models.Pedido, error)

// ServeInicial answers pedidos.inicial requests with the full current order
// list so reconnecting panels can replace their local state.
func ServeInicial(nc *nats.Conn, list ListFunc) (*nats.Subscription, error) {
	return nc.Subscribe(SubjectPedidosInicial, func(msg *nats.Msg) {
		pedidos, err := list(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("failed to build pedidos_inicial reply")
			return
		}
		data, err := json.Marshal(pedidos)
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal pedidos_inicial reply")
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Warn().Err(err).Msg("failed to respond to pedidos_inicial request")
		}
	})
}
