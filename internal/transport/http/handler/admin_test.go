package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/migration"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

type fakeAdminAdvancer struct {
	calls []string
}

func (a *fakeAdminAdvancer) Advance(ctx context.Context, executionID string) error {
	a.calls = append(a.calls, executionID)
	return nil
}

func newAdminFixture(t *testing.T) (*handler.AdminHandler, *storetest.Store, *fakeAdminAdvancer, string) {
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

	mig := migration.NewMigrator(st, cat, discardLogger())
	adv := &fakeAdminAdvancer{}
	return handler.NewAdminHandler(st, cat, mig, adv, discardLogger()), st, adv, ex.ID
}

func TestAdminHandler_ForceRetry_UnknownExecution_Returns404(t *testing.T) {
	h, _, _, _ := newAdminFixture(t)

	c, w := newGinContext(http.MethodPost, "/admin/executions/missing/nodes/greeting/force-retry", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}, {Key: "node", Value: "greeting"}}

	h.ForceRetry(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", w.Code, w.Body.String())
	}
}

func TestAdminHandler_ForceRetry_UnknownNode_Returns400(t *testing.T) {
	h, _, _, exID := newAdminFixture(t)

	c, w := newGinContext(http.MethodPost, "/admin/executions/"+exID+"/nodes/bogus/force-retry", nil)
	c.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "bogus"}}

	h.ForceRetry(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", w.Code, w.Body.String())
	}
}

func TestAdminHandler_ForceRetry_InsertsComputationAndAdvances(t *testing.T) {
	h, st, adv, exID := newAdminFixture(t)

	c, w := newGinContext(http.MethodPost, "/admin/executions/"+exID+"/nodes/greeting/force-retry", nil)
	c.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "greeting"}}

	h.ForceRetry(c)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body: %s", w.Code, w.Body.String())
	}

	ex := st.Executions[exID]
	if ex.PendingComputation("greeting") == nil {
		t.Error("expected a pending computation for greeting after a forced retry")
	}
	if len(adv.calls) != 1 || adv.calls[0] != exID {
		t.Errorf("advancer calls = %v, want [%s]", adv.calls, exID)
	}
}

func TestAdminHandler_ForceRetry_AlreadyPending_Returns409(t *testing.T) {
	h, _, _, exID := newAdminFixture(t)

	c1, w1 := newGinContext(http.MethodPost, "/admin/executions/"+exID+"/nodes/greeting/force-retry", nil)
	c1.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "greeting"}}
	h.ForceRetry(c1)
	if w1.Code != http.StatusNoContent {
		t.Fatalf("setup force retry failed: %d %s", w1.Code, w1.Body.String())
	}

	c2, w2 := newGinContext(http.MethodPost, "/admin/executions/"+exID+"/nodes/greeting/force-retry", nil)
	c2.Params = gin.Params{{Key: "id", Value: exID}, {Key: "node", Value: "greeting"}}
	h.ForceRetry(c2)

	if w2.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body: %s", w2.Code, w2.Body.String())
	}
}

func TestAdminHandler_Migrate_UnknownExecution_Returns404(t *testing.T) {
	h, _, _, _ := newAdminFixture(t)

	c, w := newGinContext(http.MethodPost, "/admin/executions/missing/migrate", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Migrate(c)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", w.Code, w.Body.String())
	}
}

func TestAdminHandler_Migrate_CurrentHash_IsNoopAndAdvances(t *testing.T) {
	h, _, adv, exID := newAdminFixture(t)

	c, w := newGinContext(http.MethodPost, "/admin/executions/"+exID+"/migrate", nil)
	c.Params = gin.Params{{Key: "id", Value: exID}}

	h.Migrate(c)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body: %s", w.Code, w.Body.String())
	}
	if len(adv.calls) != 1 || adv.calls[0] != exID {
		t.Errorf("advancer calls = %v, want [%s]", adv.calls, exID)
	}
}
