package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/journey/internal/catalog"
	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func registeredCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	graph := &catalog.GraphDefinition{
		Name:    "greeting",
		Version: "v1",
		Nodes: map[string]catalog.NodeDefinition{
			"name":     {Name: "name", Type: domain.NodeInput},
			"greeting": {Name: "greeting", Type: domain.NodeCompute},
		},
	}
	if err := cat.Register(graph); err != nil {
		t.Fatalf("register: %v", err)
	}
	return cat
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, path, reader)
	return c, w
}

func TestExecutionHandler_Create_UnregisteredGraph_Returns400(t *testing.T) {
	st := storetest.New()
	cat := catalog.New() // nothing registered
	h := handler.NewExecutionHandler(st, cat, discardLogger())

	body, _ := json.Marshal(map[string]string{"graph_name": "missing", "graph_version": "v1"})
	c, w := newGinContext(http.MethodPost, "/executions", body)

	h.Create(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestExecutionHandler_Create_RegisteredGraph_Returns201(t *testing.T) {
	st := storetest.New()
	cat := registeredCatalog(t)
	h := handler.NewExecutionHandler(st, cat, discardLogger())

	body, _ := json.Marshal(map[string]string{"graph_name": "greeting", "graph_version": "v1"})
	c, w := newGinContext(http.MethodPost, "/executions", body)

	h.Create(c)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}

	var created domain.Execution
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if created.ID == "" {
		t.Error("expected a non-empty execution id")
	}
	if len(st.Executions) != 1 {
		t.Errorf("expected exactly one stored execution, got %d", len(st.Executions))
	}
}

func TestExecutionHandler_Get_NotFound_Returns404(t *testing.T) {
	st := storetest.New()
	cat := registeredCatalog(t)
	h := handler.NewExecutionHandler(st, cat, discardLogger())

	c, w := newGinContext(http.MethodGet, "/executions/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Get(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestExecutionHandler_Archive_SetsArchivedAt(t *testing.T) {
	st := storetest.New()
	cat := registeredCatalog(t)
	graph := cat.Get("greeting", "v1")
	_, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	h := handler.NewExecutionHandler(st, cat, discardLogger())
	c, w := newGinContext(http.MethodPost, "/executions/ex-1/archive", nil)
	c.Params = gin.Params{{Key: "id", Value: "ex-1"}}

	h.Archive(c)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body: %s", w.Code, w.Body.String())
	}
	if !st.Executions["ex-1"].IsArchived() {
		t.Error("expected the execution to be archived")
	}
}
