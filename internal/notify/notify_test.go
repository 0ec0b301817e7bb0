package notify

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/paytrack/internal/orderstatus"
	"github.com/angelmondragon/paytrack/internal/poller"
	"github.com/angelmondragon/paytrack/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOutcome() poller.Outcome {
	amount := decimal.RequireFromString("149.90")
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return poller.Outcome{
		EventID:     uuid.MustParse("7b0f4c1e-5d3a-4a53-9c7e-2f0d8a1b6c11"),
		ClientScope: "client-a",
		OrderID:     "ORD-1",
		State:       enums.PollStateSuccess,
		Attempts:    4,
		Result: &orderstatus.Result{
			Found:         true,
			Status:        enums.PaymentStatusSuccess,
			Reference:     "REF-9",
			Amount:        &amount,
			PaymentMethod: "card",
		},
		StartedAt:  started,
		OccurredAt: started.Add(9 * time.Second),
	}
}

type fakePublisher struct {
	msgs    []*gcppubsub.Message
	err     error
	resumed []string
}

func (f *fakePublisher) ResumePublish(key string) {
	f.resumed = append(f.resumed, key)
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.msgs = append(f.msgs, msg)
	return fakeResult{err: f.err}
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func TestPubSubNotifierPublishesOutcome(t *testing.T) {
	pub := &fakePublisher{}
	n := &PubSubNotifier{pub: pub, timeout: time.Second}

	require.NoError(t, n.Notify(context.Background(), sampleOutcome()))
	require.Len(t, pub.msgs, 1)

	msg := pub.msgs[0]
	assert.Equal(t, EventTypePollOutcome, msg.Attributes["event_type"])
	assert.Equal(t, "SUCCESS", msg.Attributes["state"])
	assert.Equal(t, "ORD-1", msg.Attributes["order_id"])
	assert.Equal(t, "7b0f4c1e-5d3a-4a53-9c7e-2f0d8a1b6c11", msg.Attributes["event_id"])

	var decoded poller.Outcome
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, "client-a", decoded.ClientScope)
	assert.Equal(t, 4, decoded.Attempts)
	require.NotNil(t, decoded.Result)
	assert.Equal(t, "149.9", decoded.Result.Amount.String())
}

func TestPubSubNotifierReturnsPublishError(t *testing.T) {
	n := &PubSubNotifier{pub: &fakePublisher{err: errors.New("unavailable")}, timeout: time.Second}
	err := n.Notify(context.Background(), sampleOutcome())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestPubSubNotifierOrdersByScope(t *testing.T) {
	pub := &fakePublisher{err: errors.New("unavailable")}
	n := &PubSubNotifier{pub: pub, ordered: true, timeout: time.Second}

	require.Error(t, n.Notify(context.Background(), sampleOutcome()))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "client-a", pub.msgs[0].OrderingKey)
	assert.Equal(t, []string{"client-a"}, pub.resumed)

	unordered := &fakePublisher{}
	n = &PubSubNotifier{pub: unordered, timeout: time.Second}
	require.NoError(t, n.Notify(context.Background(), sampleOutcome()))
	assert.Empty(t, unordered.msgs[0].OrderingKey)
	assert.Empty(t, unordered.resumed)
}

func TestNewPubSubNotifierRequiresPublisher(t *testing.T) {
	_, err := NewPubSubNotifier(nil)
	assert.Error(t, err)
}

type fakeInserter struct {
	table string
	rows  []any
	err   error
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.table = table
	f.rows = append(f.rows, rows...)
	return f.err
}

func TestBigQueryNotifierInsertsRow(t *testing.T) {
	ins := &fakeInserter{}
	n, err := NewBigQueryNotifier(ins, " poll_outcomes ")
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), sampleOutcome()))
	assert.Equal(t, "poll_outcomes", ins.table)
	require.Len(t, ins.rows, 1)

	row, ok := ins.rows[0].(*outcomeRow)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", row.OrderID)
	assert.Equal(t, "SUCCESS", row.State)
	assert.Equal(t, int64(4), row.Attempts)
	assert.Equal(t, "149.9", row.Amount.StringVal)
	assert.True(t, row.PaymentStatus.Valid)
	assert.InDelta(t, 9.0, row.DurationSeconds, 0.001)
	assert.True(t, row.Payload.Valid)
}

func TestBigQueryRowWithoutResult(t *testing.T) {
	outcome := sampleOutcome()
	outcome.State = enums.PollStateTimeout
	outcome.Result = nil

	row, err := buildRow(outcome)
	require.NoError(t, err)
	assert.Equal(t, "TIMEOUT", row.State)
	assert.False(t, row.PaymentStatus.Valid)
	assert.False(t, row.Amount.Valid)
	assert.False(t, row.Payload.Valid)
}

func TestNewBigQueryNotifierValidation(t *testing.T) {
	_, err := NewBigQueryNotifier(nil, "t")
	assert.Error(t, err)
	_, err = NewBigQueryNotifier(&fakeInserter{}, " ")
	assert.Error(t, err)
}

func TestMultiCombinesErrors(t *testing.T) {
	var calls []string
	ok := Func(func(context.Context, poller.Outcome) error {
		calls = append(calls, "ok")
		return nil
	})
	bad := Func(func(context.Context, poller.Outcome) error {
		calls = append(calls, "bad")
		return errors.New("bad notifier")
	})
	worse := Func(func(context.Context, poller.Outcome) error {
		calls = append(calls, "worse")
		return errors.New("worse notifier")
	})

	err := Combine(bad, nil, ok, worse).Notify(context.Background(), sampleOutcome())
	require.Error(t, err)
	assert.Equal(t, []string{"bad", "ok", "worse"}, calls)
	assert.Contains(t, err.Error(), "bad notifier")
	assert.Contains(t, err.Error(), "worse notifier")
}

func TestCombineEmpty(t *testing.T) {
	assert.Nil(t, Combine(nil, nil))
	var m Multi
	assert.NoError(t, m.Notify(context.Background(), sampleOutcome()))
}

func TestOutcomeSchemaCoversRowColumns(t *testing.T) {
	row, err := buildRow(poller.Outcome{OrderID: "ORD-1", State: enums.PollStateTimeout})
	if err != nil {
		t.Fatalf("build row: %v", err)
	}
	columns := map[string]bool{}
	for _, field := range OutcomeSchema {
		columns[field.Name] = true
	}
	rt := reflect.TypeOf(*row)
	for i := 0; i < rt.NumField(); i++ {
		name := rt.Field(i).Tag.Get("bigquery")
		if !columns[name] {
			t.Fatalf("column %q missing from OutcomeSchema", name)
		}
	}
	if len(OutcomeSchema) != rt.NumField() {
		t.Fatalf("schema has %d fields, row has %d", len(OutcomeSchema), rt.NumField())
	}
}
