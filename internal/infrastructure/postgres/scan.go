package postgres

import (
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ErlanBelekov/journey/internal/domain"
	"github.com/ErlanBelekov/journey/internal/value"
)

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var (
		ex         domain.Execution
		archivedAt *time.Time
	)
	if err := row.Scan(&ex.ID, &ex.GraphName, &ex.GraphVersion, &ex.GraphHash, &ex.Revision,
		&archivedAt, &ex.InsertedAt, &ex.UpdatedAt); err != nil {
		return nil, err
	}
	ex.ArchivedAt = archivedAt
	return &ex, nil
}

func scanValueRow(row pgx.Row) (*domain.ValueRow, error) {
	var (
		v          domain.ValueRow
		rawValue   []byte
		rawMeta    []byte
		setTime    *time.Time
		exRevision *uint64
	)
	if err := row.Scan(&v.ID, &v.ExecutionID, &v.NodeName, &v.NodeType, &rawValue,
		&setTime, &exRevision, &rawMeta, &v.InsertedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.SetTime = setTime
	v.ExRevision = exRevision
	if err := decodeJSONB(rawValue, &v.NodeValue); err != nil {
		return nil, err
	}
	if err := decodeJSONB(rawMeta, &v.Metadata); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanComputation(row pgx.Row) (*domain.Computation, error) {
	var (
		c             domain.Computation
		rawComputedWith []byte
	)
	if err := row.Scan(&c.ID, &c.ExecutionID, &c.NodeName, &c.ComputationType, &c.State,
		&c.ExRevisionAtStart, &c.ExRevisionAtCompletion,
		&c.ScheduledTime, &c.StartTime, &c.CompletionTime, &c.Deadline,
		&c.ErrorDetails, &rawComputedWith,
		&c.LastHeartbeatAt, &c.HeartbeatDeadline,
		&c.InsertedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(rawComputedWith) > 0 {
		if err := json.Unmarshal(rawComputedWith, &c.ComputedWith); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// decodeJSONB decodes a nullable jsonb column into a value.Value,
// treating SQL NULL as value.Null() rather than an error.
func decodeJSONB(raw []byte, out *value.Value) error {
	if len(raw) == 0 {
		*out = value.Null()
		return nil
	}
	return out.UnmarshalJSON(raw)
}

func encodeValue(v value.Value) ([]byte, error) {
	return v.MarshalJSON()
}
