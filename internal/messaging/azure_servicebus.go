package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/models"
)

// ERPPublisher publishes shipped orders to the queue consumed by the SAGE50
// exporter.
type ERPPublisher interface {
	PublishPedido(ctx context.Context, pedido *models.Pedido) error
	Close() error
}

// serviceBusPublisher implements ERPPublisher over Azure Service Bus
type serviceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewERPPublisher creates a new Service Bus publisher for the ERP queue
func NewERPPublisher(cfg config.AzureConfig) (ERPPublisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &serviceBusPublisher{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// PublishPedido sends the full order document to the ERP queue
func (p *serviceBusPublisher) PublishPedido(ctx context.Context, pedido *models.Pedido) error {
	data, err := json.Marshal(pedido)
	if err != nil {
		return fmt.Errorf("failed to marshal pedido: %w", err)
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source":    "pedidos",
			"tienda_id": pedido.TiendaID,
			"time":      time.Now().UTC().Format(time.RFC3339),
		},
	}

	return p.sender.SendMessage(ctx, msg, nil)
}

// Close closes the Service Bus client
func (p *serviceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}
