package search

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/models"
)

// ElasticClient provides the order history index. Shipped orders are
// indexed so historical date-range queries don't scan the live collection.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexPedido indexes an order in the history index. The document id is the
// storage id so re-indexing after a repeated transition overwrites in place.
func (c *ElasticClient) IndexPedido(ctx context.Context, pedido *models.Pedido) error {
	log.Info().Str("pedido_id", pedido.ID.String()).Msg("indexing pedido")

	doc := map[string]interface{}{
		"id":             pedido.ID.String(),
		"tienda_id":      pedido.TiendaID,
		"estado":         pedido.Estado,
		"fecha_creacion": pedido.FechaCreacion,
		"fecha_envio":    pedido.FechaEnvio,
		"lineas":         pedido.Lineas,
	}
	if pedido.NumeroPedido != nil {
		doc["numero_pedido"] = *pedido.NumeroPedido
	}
	if pedido.FechaRecepcion != nil {
		doc["fecha_recepcion"] = pedido.FechaRecepcion
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal pedido document")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: pedido.ID.String(),
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Str("pedido_id", pedido.ID.String()).Msg("pedido indexed successfully")
	return nil
}

// SearchPedidos searches the history index by store and shipping-date range
func (c *ElasticClient) SearchPedidos(ctx context.Context, tiendaID string, desde, hasta *time.Time) ([]map[string]interface{}, error) {
	must := []map[string]interface{}{}
	if tiendaID != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"tienda_id": tiendaID},
		})
	}
	if desde != nil || hasta != nil {
		rangeQuery := map[string]interface{}{}
		if desde != nil {
			rangeQuery["gte"] = desde.Format(time.RFC3339)
		}
		if hasta != nil {
			rangeQuery["lte"] = hasta.Format(time.RFC3339)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"fecha_envio": rangeQuery},
		})
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
		"sort": []map[string]interface{}{
			{"fecha_envio": map[string]interface{}{"order": "desc"}},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	indexName := config.FormatIndex(c.config, c.config.Index)
	req := esapi.SearchRequest{
		Index: []string{indexName},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}
	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, source)
	}

	return docs, nil
}
