// Package bigquery wraps the client that the outcome notifier streams rows into.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/paytrack/pkg/config"
	"github.com/angelmondragon/paytrack/pkg/gcp"
	"github.com/angelmondragon/paytrack/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is bound to one dataset and the poll outcome table inside it.
type Client struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	table   string
	logg    *logger.Logger
}

// NewClient connects and checks that the dataset exists. The outcome table is
// checked separately by EnsureOutcomeTable, which may create it.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcpCfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	table := strings.TrimSpace(cfg.OutcomeTable)
	if table == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{client: bqClient, dataset: bqClient.Dataset(datasetID), table: table, logg: logg}

	checkCtx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()
	if _, err := client.dataset.Metadata(checkCtx); err != nil {
		_ = bqClient.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("dataset %q does not exist", datasetID)
		}
		return nil, fmt.Errorf("checking dataset %q: %w", datasetID, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery client initialized")
	}
	return client, nil
}

// EnsureOutcomeTable verifies the outcome table. When it is missing and create
// is set, the table is created with schema, partitioned by day on occurred_at.
func (c *Client) EnsureOutcomeTable(ctx context.Context, schema bigquery.Schema, create bool) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	ref := c.dataset.Table(c.table)
	_, err := ref.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return fmt.Errorf("checking table %q: %w", c.table, err)
	case !create:
		return fmt.Errorf("table %q does not exist", c.table)
	}

	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "occurred_at"},
	}
	if err := ref.Create(ctx, meta); err != nil && !isConflict(err) {
		return fmt.Errorf("creating table %q: %w", c.table, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "table", c.table), "bigquery outcome table created")
	}
	return nil
}

// Ping checks that the outcome table is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	if _, err := c.dataset.Table(c.table).Metadata(ctx); err != nil {
		return fmt.Errorf("outcome table %q: %w", c.table, err)
	}
	return nil
}

// InsertRows streams rows into table. Per-row failures come back as a
// bigquery.PutMultiError.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.client == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) OutcomeTable() string {
	if c == nil {
		return ""
	}
	return c.table
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiStatus(err) == http.StatusConflict
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code
	}
	return 0
}
