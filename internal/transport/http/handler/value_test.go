package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/kick"
	"github.com/ErlanBelekov/journey/internal/mutation"
	"github.com/ErlanBelekov/journey/internal/read"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/transport/http/handler"
	"github.com/ErlanBelekov/journey/internal/value"
	"github.com/gin-gonic/gin"
)

type fakeValueAdvancer struct{}

func (fakeValueAdvancer) Advance(ctx context.Context, executionID string) error { return nil }

func newValueFixture(t *testing.T) (*handler.ValueHandler, *storetest.Store, string) {
	t.Helper()

	cat := registeredCatalog(t)
	graph := cat.Get("greeting", "v1")
	st := storetest.New()
	ex, err := st.CreateExecution(context.Background(), &domain.Execution{
		ID: "ex-1", GraphName: "greeting", GraphVersion: "v1", GraphHash: graph.Hash(),
	}, map[string]domain.NodeType{"name": domain.NodeInput, "greeting": domain.NodeCompute})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	bus := kick.NewBus(8)
	notifier := kick.NewNotifier()
	m := mutation.NewMutator(st, cat, bus, notifier, fakeValueAdvancer{}, discardLogger())
	r := read.NewReader(st, notifier, 10*time.Millisecond)

	return handler.NewValueHandler(m, r, discardLogger()), st, ex.ID
}

func TestValueHandler_SetMany_UnknownExecution_Returns404(t *testing.T) {
	h, _, _ := newValueFixture(t)

	body, _ := json.Marshal(map[string]any{"values": map[string]value.Value{"name": value.String("Ada")}})
	c, w := newGinContext(http.MethodPost, "/executions/missing/values", body)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.SetMany(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", w.Code, w.Body.String())
	}
}

func TestValueHandler_SetMany_ValidInput_Returns204(t *testing.T) {
	h, st, exID := newValueFixture(t)

	body, _ := json.Marshal(map[string]any{"values": map[string]value.Value{"name": value.String("Ada")}})
	c, w := newGinContext(http.MethodPost, "/executions/"+exID+"/values", body)
	c.Params = gin.Params{{Key: "id", Value: exID}}

	h.SetMany(c)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body: %s", w.Code, w.Body.String())
	}

	row, err := st.Value(context.Background(), exID, "name")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if row.NodeValue.StringValue() != "Ada" {
		t.Errorf("stored value = %q, want Ada", row.NodeValue.StringValue())
	}
}

func TestValueHandler_SetMany_DerivedNode_Returns400(t *testing.T) {
	h, _, exID := newValueFixture(t)

	body, _ := json.Marshal(map[string]any{"values": map[string]value.Value{"greeting": value.String("nope")}})
	c, w := newGinContext(http.MethodPost, "/executions/"+exID+"/values", body)
	c.Params = gin.Params{{Key: "id", Value: exID}}

	h.SetMany(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", w.Code, w.Body.String())
	}
}

func TestValueHandler_Get_WaitImmediate_NotSet_ReturnsOkWithNotSetError(t *testing.T) {
	h, _, exID := newValueFixture(t)

	c, w := newGinContext(http.MethodGet, "/executions/"+exID+"/values/name", nil)
	c.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "name"}}

	h.Get(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected a not_set error in the body")
	}
}

func TestValueHandler_Get_InvalidWaitMode_Returns400(t *testing.T) {
	h, _, exID := newValueFixture(t)

	c, w := newGinContext(http.MethodGet, "/executions/"+exID+"/values/name?wait=bogus", nil)
	c.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "name"}}

	h.Get(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", w.Code, w.Body.String())
	}
}

func TestValueHandler_Get_AfterSet_ReturnsValueAndRevision(t *testing.T) {
	h, _, exID := newValueFixture(t)

	setBody, _ := json.Marshal(map[string]any{"values": map[string]value.Value{"name": value.String("Ada")}})
	setCtx, setW := newGinContext(http.MethodPost, "/executions/"+exID+"/values", setBody)
	setCtx.Params = gin.Params{{Key: "id", Value: exID}}
	h.SetMany(setCtx)
	if setW.Code != http.StatusNoContent {
		t.Fatalf("setup SetMany failed: %d %s", setW.Code, setW.Body.String())
	}

	c, w := newGinContext(http.MethodGet, "/executions/"+exID+"/values/name", nil)
	c.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "name"}}

	h.Get(c)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Value    value.Value `json:"value"`
		Revision uint64      `json:"revision"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Value.StringValue() != "Ada" {
		t.Errorf("value = %q, want Ada", resp.Value.StringValue())
	}
	if resp.Revision == 0 {
		t.Error("expected a non-zero revision after a successful set")
	}
}
