package relay

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/internal/models"
)

// EventHandler receives relay events on the client side. Handlers are
// invoked from the NATS callback goroutine.
type EventHandler interface {
	OnPedidoNuevo(pedido models.Pedido)
	OnPedidoActualizado(pedido models.Pedido)
	OnPedidoEliminado(id string)
	OnPedidosInicial(pedidos []models.Pedido)
}

// Subscriber consumes relay broadcasts for a panel
type Subscriber struct {
	nc   *nats.Conn
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber on an established connection
func NewSubscriber(nc *nats.Conn) *Subscriber {
	return &Subscriber{nc: nc}
}

// Subscribe wires the three mutation subjects to the handler. Every event
// is applied as received; filtering by store is the handler's concern.
func (s *Subscriber) Subscribe(handler EventHandler) error {
	sub, err := s.nc.Subscribe(SubjectPedidoNuevo, func(msg *nats.Msg) {
		var pedido models.Pedido
		if err := json.Unmarshal(msg.Data, &pedido); err != nil {
			log.Warn().Err(err).Msg("discarding malformed pedido_nuevo event")
			return
		}
		handler.OnPedidoNuevo(pedido)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe(SubjectPedidoActualizado, func(msg *nats.Msg) {
		var pedido models.Pedido
		if err := json.Unmarshal(msg.Data, &pedido); err != nil {
			log.Warn().Err(err).Msg("discarding malformed pedido_actualizado event")
			return
		}
		handler.OnPedidoActualizado(pedido)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe(SubjectPedidoEliminado, func(msg *nats.Msg) {
		var event EliminadoEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Warn().Err(err).Msg("discarding malformed pedido_eliminado event")
			return
		}
		handler.OnPedidoEliminado(event.ID)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	return nil
}

// RequestInicial asks the server for the full current order list and hands
// it to the handler as a full state replacement.
func (s *Subscriber) RequestInicial(handler EventHandler, timeout time.Duration) error {
	msg, err := s.nc.Request(SubjectPedidosInicial, nil, timeout)
	if err != nil {
		return err
	}
	var pedidos []models.Pedido
	if err := json.Unmarshal(msg.Data, &pedidos); err != nil {
		return err
	}
	handler.OnPedidosInicial(pedidos)
	return nil
}

// Unsubscribe drops all subscriptions
func (s *Subscriber) Unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("failed to unsubscribe from relay subject")
		}
	}
	s.subs = nil
}
