package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/carniceria/pedidos/config"
	"example.com/carniceria/pedidos/internal/models"
)

// fakeServer is a minimal in-memory stand-in for the order endpoints
type fakeServer struct {
	mu      sync.Mutex
	pedidos map[uuid.UUID]models.Pedido
	fail    bool
}

func newFakeServer() (*fakeServer, *httptest.Server) {
	fs := &fakeServer{pedidos: map[uuid.UUID]models.Pedido{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/pedidos", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if fs.fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		switch r.Method {
		case http.MethodGet:
			filtro := r.URL.Query().Get("tiendaId")
			out := []models.Pedido{}
			for _, p := range fs.pedidos {
				if filtro == "" || p.TiendaID == filtro {
					out = append(out, p)
				}
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			var p models.Pedido
			json.NewDecoder(r.Body).Decode(&p)
			p.ID = uuid.New()
			fs.pedidos[p.ID] = p
			json.NewEncoder(w).Encode(p)
		}
	})
	mux.HandleFunc("/api/v1/pedidos/", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if fs.fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		id, err := uuid.Parse(r.URL.Path[len("/api/v1/pedidos/"):])
		if err != nil {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodPut:
			var doc models.Pedido
			json.NewDecoder(r.Body).Decode(&doc)
			doc.ID = id
			doc.Version = fs.pedidos[id].Version + 1
			fs.pedidos[id] = doc
			json.NewEncoder(w).Encode(doc)
		case http.MethodDelete:
			delete(fs.pedidos, id)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	return fs, httptest.NewServer(mux)
}

func newGestor(t *testing.T, baseURL, tiendaID string, fabrica bool) *GestorPedidos {
	t.Helper()
	return NewGestorPedidos(config.ClienteConfig{
		BaseURL:     baseURL,
		TiendaID:    tiendaID,
		ModoFabrica: fabrica,
	}, nil, nil)
}

func (fs *fakeServer) seed(p models.Pedido) models.Pedido {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	fs.pedidos[p.ID] = p
	return p
}

func TestGestorPedidosFetch(t *testing.T) {
	fs, srv := newFakeServer()
	defer srv.Close()

	fs.seed(models.Pedido{TiendaID: "tienda1", Estado: models.EstadoEnviado})
	fs.seed(models.Pedido{TiendaID: "tienda2", Estado: models.EstadoEnviado})

	// A store panel only sees its own orders
	gestor := newGestor(t, srv.URL, "tienda1", false)
	require.NoError(t, gestor.Fetch(context.Background()))
	require.Len(t, gestor.Pedidos(), 1)
	require.Equal(t, "tienda1", gestor.Pedidos()[0].TiendaID)

	// The factory panel sees everything
	fabrica := newGestor(t, srv.URL, "", true)
	require.NoError(t, fabrica.Fetch(context.Background()))
	require.Len(t, fabrica.Pedidos(), 2)
}

func TestGestorPedidosFetchFailureKeepsState(t *testing.T) {
	fs, srv := newFakeServer()
	defer srv.Close()

	fs.seed(models.Pedido{TiendaID: "tienda1", Estado: models.EstadoEnviado})

	gestor := newGestor(t, srv.URL, "tienda1", false)
	require.NoError(t, gestor.Fetch(context.Background()))
	require.Len(t, gestor.Pedidos(), 1)

	fs.mu.Lock()
	fs.fail = true
	fs.mu.Unlock()

	require.Error(t, gestor.Fetch(context.Background()))
	require.Len(t, gestor.Pedidos(), 1, "prior state survives a failed fetch")
}

func TestGestorPedidosChangeLineStatusRoundTrip(t *testing.T) {
	fs, srv := newFakeServer()
	defer srv.Close()

	seeded := fs.seed(models.Pedido{
		TiendaID: "tienda1",
		Estado:   models.EstadoEnviado,
		Lineas: models.LineaList{
			{Producto: "chorizo", Cantidad: 2, Formato: models.FormatoGranel},
			{Producto: "morcilla", Cantidad: 1, Formato: models.FormatoBandeja},
		},
	})

	gestor := newGestor(t, srv.URL, "tienda1", false)
	require.NoError(t, gestor.Fetch(context.Background()))

	require.NoError(t, gestor.ChangeLineStatus(context.Background(), seeded.ID.String(), 1, true))

	pedidos := gestor.Pedidos()
	require.Len(t, pedidos, 1)
	require.Len(t, pedidos[0].Lineas, 2, "the untouched line survives the full-document write")
	require.False(t, pedidos[0].Lineas[0].Preparado)
	require.True(t, pedidos[0].Lineas[1].Preparado)

	require.Error(t, gestor.ChangeLineStatus(context.Background(), seeded.ID.String(), 5, true))
}

func TestGestorPedidosReplaceLineas(t *testing.T) {
	fs, srv := newFakeServer()
	defer srv.Close()

	seeded := fs.seed(models.Pedido{
		TiendaID: "tienda1",
		Estado:   models.EstadoEnviado,
		Lineas: models.LineaList{
			{Producto: "chorizo", Cantidad: 2, Formato: models.FormatoGranel},
			{Producto: "morcilla", Cantidad: 1, Formato: models.FormatoBandeja},
			{Producto: "lomo", Cantidad: 3, Formato: models.FormatoPieza},
		},
	})

	gestor := newGestor(t, srv.URL, "tienda1", false)
	require.NoError(t, gestor.Fetch(context.Background()))

	err := gestor.ReplaceLineas(context.Background(), seeded.ID.String(), []models.LineaPedido{
		{Producto: "panceta", Cantidad: 1, Formato: models.FormatoVacio},
	})
	require.NoError(t, err)

	pedidos := gestor.Pedidos()
	require.Len(t, pedidos[0].Lineas, 1)
	require.Equal(t, "panceta", pedidos[0].Lineas[0].Producto)
}

func TestGestorPedidosRelayFiltering(t *testing.T) {
	tienda1 := newGestor(t, "http://unused", "tienda1", false)
	tienda2 := newGestor(t, "http://unused", "tienda2", false)
	fabrica := newGestor(t, "http://unused", "", true)

	pedido := models.Pedido{ID: uuid.New(), TiendaID: "tienda1", Estado: models.EstadoEnviado}

	tienda1.OnPedidoNuevo(pedido)
	tienda2.OnPedidoNuevo(pedido)
	fabrica.OnPedidoNuevo(pedido)

	require.Len(t, tienda1.Pedidos(), 1)
	require.Empty(t, tienda2.Pedidos(), "events for other stores are dropped")
	require.Len(t, fabrica.Pedidos(), 1)

	// An update broadcast replaces the entry wholesale
	pedido.Estado = models.EstadoPreparado
	tienda1.OnPedidoActualizado(pedido)
	require.Equal(t, models.EstadoPreparado, tienda1.Pedidos()[0].Estado)

	// Deletion removes it everywhere it exists
	tienda1.OnPedidoEliminado(pedido.ID.String())
	fabrica.OnPedidoEliminado(pedido.ID.String())
	require.Empty(t, tienda1.Pedidos())
	require.Empty(t, fabrica.Pedidos())
}

func TestGestorPedidosInicialSnapshot(t *testing.T) {
	gestor := newGestor(t, "http://unused", "tienda2", false)
	gestor.OnPedidoNuevo(models.Pedido{ID: uuid.New(), TiendaID: "tienda2"})

	snapshot := []models.Pedido{
		{ID: uuid.New(), TiendaID: "tienda1"},
		{ID: uuid.New(), TiendaID: "tienda2"},
	}
	gestor.OnPedidosInicial(snapshot)

	pedidos := gestor.Pedidos()
	require.Len(t, pedidos, 1, "the snapshot replaces local state, filtered by store")
	require.Equal(t, "tienda2", pedidos[0].TiendaID)
}

func TestGestorPedidosLastWriterWins(t *testing.T) {
	fs, srv := newFakeServer()
	defer srv.Close()

	seeded := fs.seed(models.Pedido{
		TiendaID: "tienda1",
		Estado:   models.EstadoEnviado,
		Lineas: models.LineaList{
			{Producto: "chorizo", Cantidad: 2, Formato: models.FormatoGranel},
		},
	})

	tienda := newGestor(t, srv.URL, "tienda1", false)
	fabrica := newGestor(t, srv.URL, "", true)
	require.NoError(t, tienda.Fetch(context.Background()))
	require.NoError(t, fabrica.Fetch(context.Background()))

	// Two panels write concurrently from the same snapshot; the second
	// full-document write silently overwrites the first.
	comentario := "urgente"
	require.NoError(t, tienda.ChangeLineDetail(context.Background(), seeded.ID.String(), 0, CambiosLinea{
		Comentario: &comentario,
	}))
	require.NoError(t, fabrica.ChangeLineStatus(context.Background(), seeded.ID.String(), 0, true))

	fs.mu.Lock()
	final := fs.pedidos[seeded.ID]
	fs.mu.Unlock()

	require.True(t, final.Lineas[0].Preparado)
	require.Empty(t, final.Lineas[0].Comentario, "the first write is lost without error")
}

func TestGestorPedidosCreateRequiresTienda(t *testing.T) {
	gestor := newGestor(t, "http://unused", "", false)
	err := gestor.Create(context.Background(), models.Pedido{})
	require.Error(t, err)
}
