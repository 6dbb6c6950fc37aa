package scheduler_test

import (
	"time"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/store"
	"github.com/ErlanBelekov/journey/internal/storetest"
	"github.com/ErlanBelekov/journey/internal/value"
)

func nowUTC() time.Time { return time.Now().UTC() }

func storetestLoadOptions() store.LoadOptions { return store.LoadOptions{} }

func findComp(st *storetest.Store, exID, node string) *domain.Computation {
	ex := st.Executions[exID]
	for _, c := range ex.Computations {
		if c.NodeName == node {
			return c
		}
	}
	return nil
}

func setValue(st *storetest.Store, exID, node string, v value.Value, rev uint64) {
	ex := st.Executions[exID]
	row := ex.Value(node)
	now := time.Now().UTC()
	row.NodeValue = v
	row.SetTime = &now
	row.ExRevision = &rev
	if rev > ex.Revision {
		ex.Revision = rev
	}
}
