package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/angelmondragon/paytrack/internal/poller"
)

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryNotifier writes one analytics row per outcome.
type BigQueryNotifier struct {
	client tableInserter
	table  string
}

// NewBigQueryNotifier targets table through client.
func NewBigQueryNotifier(client tableInserter, table string) (*BigQueryNotifier, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("bigquery table name required")
	}
	return &BigQueryNotifier{client: client, table: strings.TrimSpace(table)}, nil
}

type outcomeRow struct {
	EventID         string               `bigquery:"event_id"`
	ClientScope     cbigquery.NullString `bigquery:"client_scope"`
	OrderID         string               `bigquery:"order_id"`
	State           string               `bigquery:"state"`
	Attempts        int64                `bigquery:"attempts"`
	PaymentStatus   cbigquery.NullString `bigquery:"payment_status"`
	Reference       cbigquery.NullString `bigquery:"reference"`
	Amount          cbigquery.NullString `bigquery:"amount"`
	PaymentMethod   cbigquery.NullString `bigquery:"payment_method"`
	DurationSeconds float64              `bigquery:"duration_seconds"`
	StartedAt       time.Time            `bigquery:"started_at"`
	OccurredAt      time.Time            `bigquery:"occurred_at"`
	Payload         cbigquery.NullJSON   `bigquery:"payload"`
}

// OutcomeSchema matches outcomeRow and is used when the table has to be created.
var OutcomeSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "client_scope", Type: cbigquery.StringFieldType},
	{Name: "order_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "state", Type: cbigquery.StringFieldType, Required: true},
	{Name: "attempts", Type: cbigquery.IntegerFieldType, Required: true},
	{Name: "payment_status", Type: cbigquery.StringFieldType},
	{Name: "reference", Type: cbigquery.StringFieldType},
	{Name: "amount", Type: cbigquery.StringFieldType},
	{Name: "payment_method", Type: cbigquery.StringFieldType},
	{Name: "duration_seconds", Type: cbigquery.FloatFieldType, Required: true},
	{Name: "started_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}

func (n *BigQueryNotifier) Notify(ctx context.Context, outcome poller.Outcome) error {
	row, err := buildRow(outcome)
	if err != nil {
		return err
	}
	if err := n.client.InsertRows(ctx, n.table, []any{row}); err != nil {
		return fmt.Errorf("insert outcome %s: %w", outcome.EventID, err)
	}
	return nil
}

func buildRow(outcome poller.Outcome) (*outcomeRow, error) {
	row := &outcomeRow{
		EventID:     outcome.EventID.String(),
		ClientScope: nullString(outcome.ClientScope),
		OrderID:     outcome.OrderID,
		State:       outcome.State.String(),
		Attempts:    int64(outcome.Attempts),
		StartedAt:   outcome.StartedAt.UTC(),
		OccurredAt:  outcome.OccurredAt.UTC(),
	}
	if !outcome.StartedAt.IsZero() && outcome.OccurredAt.After(outcome.StartedAt) {
		row.DurationSeconds = outcome.OccurredAt.Sub(outcome.StartedAt).Seconds()
	}

	if res := outcome.Result; res != nil {
		row.PaymentStatus = nullString(res.Status.String())
		row.Reference = nullString(res.Reference)
		row.PaymentMethod = nullString(res.PaymentMethod)
		if res.Amount != nil {
			row.Amount = nullString(res.Amount.String())
		}
		payload, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		row.Payload = cbigquery.NullJSON{JSONVal: string(payload), Valid: true}
	}
	return row, nil
}

func nullString(v string) cbigquery.NullString {
	v = strings.TrimSpace(v)
	return cbigquery.NullString{StringVal: v, Valid: v != ""}
}
