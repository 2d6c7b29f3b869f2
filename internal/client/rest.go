package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"example.com/carniceria/pedidos/internal/models"
)

// restClient wraps the CRUD REST calls against the order and notice
// endpoints.
type restClient struct {
	baseURL string
	http    *http.Client
}

func newRESTClient(baseURL string, httpClient *http.Client) *restClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &restClient{
		baseURL: baseURL,
		http:    httpClient,
	}
}

// do performs one JSON request. Responses with a non-2xx status are errors.
func (c *restClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return errors.Errorf("%s %s returned %d: %s", method, path, res.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func (c *restClient) listPedidos(ctx context.Context, tiendaID string) ([]models.Pedido, error) {
	path := "/api/v1/pedidos"
	if tiendaID != "" {
		path += "?tiendaId=" + url.QueryEscape(tiendaID)
	}
	var pedidos []models.Pedido
	if err := c.do(ctx, http.MethodGet, path, nil, &pedidos); err != nil {
		return nil, err
	}
	return pedidos, nil
}

func (c *restClient) createPedido(ctx context.Context, pedido *models.Pedido) (*models.Pedido, error) {
	var created models.Pedido
	if err := c.do(ctx, http.MethodPost, "/api/v1/pedidos", pedido, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *restClient) updatePedido(ctx context.Context, id string, pedido *models.Pedido) (*models.Pedido, error) {
	var updated models.Pedido
	path := fmt.Sprintf("/api/v1/pedidos/%s", url.PathEscape(id))
	if err := c.do(ctx, http.MethodPut, path, pedido, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *restClient) deletePedido(ctx context.Context, id string) error {
	path := fmt.Sprintf("/api/v1/pedidos/%s", url.PathEscape(id))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *restClient) listAvisos(ctx context.Context, tiendaID string) ([]models.Aviso, error) {
	path := "/api/v1/avisos"
	if tiendaID != "" {
		path += "?tiendaId=" + url.QueryEscape(tiendaID)
	}
	var avisos []models.Aviso
	if err := c.do(ctx, http.MethodGet, path, nil, &avisos); err != nil {
		return nil, err
	}
	return avisos, nil
}

func (c *restClient) ultimoAviso(ctx context.Context, tiendaID string) (*models.Aviso, error) {
	path := "/api/v1/avisos/ultimo"
	if tiendaID != "" {
		path += "?tiendaId=" + url.QueryEscape(tiendaID)
	}
	var aviso models.Aviso
	if err := c.do(ctx, http.MethodGet, path, nil, &aviso); err != nil {
		return nil, err
	}
	return &aviso, nil
}

func (c *restClient) createAviso(ctx context.Context, aviso *models.Aviso) (*models.Aviso, error) {
	var created models.Aviso
	if err := c.do(ctx, http.MethodPost, "/api/v1/avisos", aviso, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *restClient) marcarVisto(ctx context.Context, id, tiendaID string) (*models.Aviso, error) {
	var aviso models.Aviso
	path := fmt.Sprintf("/api/v1/avisos/%s/visto", url.PathEscape(id))
	body := map[string]string{"tiendaId": tiendaID}
	if err := c.do(ctx, http.MethodPatch, path, body, &aviso); err != nil {
		return nil, err
	}
	return &aviso, nil
}
