package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"analytics-chat-be/internal/pkg/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("analytics-chat-be/pkg/cosmos")

type GatewayConfig struct {
	Endpoint string
	Key      string
	Database string
	// Containers maps logical names ("gold") to physical container IDs.
	Containers map[string]string
	MaxRetries int
}

// Gateway hands out Container handles bound to one database.
type Gateway struct {
	client     *azcosmos.Client
	database   *azcosmos.DatabaseClient
	containers map[string]string
	maxRetries int
	logger     logger.ILogger
}

func NewGateway(cfg GatewayConfig, log logger.ILogger) (*Gateway, error) {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return nil, fmt.Errorf("cosmos endpoint and key are required")
	}

	cred, err := azcosmos.NewKeyCredential(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cosmos credential: %w", err)
	}

	client, err := azcosmos.NewClientWithKey(cfg.Endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cosmos client: %w", err)
	}

	database, err := client.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database, err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	log.Info("CosmosGateway", "Cosmos gateway initialized", map[string]interface{}{
		"endpoint": cfg.Endpoint,
		"database": cfg.Database,
	})

	return &Gateway{
		client:     client,
		database:   database,
		containers: cfg.Containers,
		maxRetries: maxRetries,
		logger:     log,
	}, nil
}

// Container resolves a logical container name.
func (g *Gateway) Container(name string) (Container, error) {
	id, ok := g.containers[name]
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContainer, name)
	}
	c, err := g.database.NewContainer(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", id, err)
	}
	return &cosmosContainer{name: name, client: c, maxRetries: g.maxRetries, logger: g.logger}, nil
}

type cosmosContainer struct {
	name       string
	client     *azcosmos.ContainerClient
	maxRetries int
	logger     logger.ILogger
}

var _ Container = &cosmosContainer{}

func (c *cosmosContainer) Name() string { return c.name }

func (c *cosmosContainer) Query(ctx context.Context, query string, params []QueryParameter, opts QueryOptions) ([]any, error) {
	ctx, span := tracer.Start(ctx, "cosmos.query")
	defer span.End()
	span.SetAttributes(
		attribute.String("cosmos.container", c.name),
		attribute.Bool("cosmos.cross_partition", opts.CrossPartition),
	)

	pk := azcosmos.NewPartitionKey()
	if !opts.CrossPartition {
		var err error
		if pk, err = opts.PartitionKey.azure(); err != nil {
			return nil, err
		}
	}

	queryParams := make([]azcosmos.QueryParameter, len(params))
	for i, p := range params {
		queryParams[i] = azcosmos.QueryParameter{Name: p.Name, Value: p.Value}
	}

	pager := c.client.NewQueryItemsPager(query, pk, &azcosmos.QueryOptions{QueryParameters: queryParams})

	results := []any{}
	for pager.More() {
		page, err := retry(ctx, c.maxRetries, func() (azcosmos.QueryItemsResponse, error) {
			return pager.NextPage(ctx)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "query failed")
			if opts.CrossPartition && hasStatus(err, http.StatusBadRequest) && NeedsQueryPlan(query) {
				return nil, fmt.Errorf("%w: %v", ErrCrossPartitionQuery, err)
			}
			return nil, mapError(err)
		}
		for _, raw := range page.Items {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("failed to decode query result: %w", err)
			}
			results = append(results, v)
			if opts.MaxItems > 0 && len(results) >= opts.MaxItems {
				span.SetAttributes(attribute.Int("cosmos.result_count", len(results)))
				return results, nil
			}
		}
	}

	span.SetAttributes(attribute.Int("cosmos.result_count", len(results)))
	return results, nil
}

func (c *cosmosContainer) ReadItem(ctx context.Context, pk PartitionKey, id string) (Record, error) {
	key, err := pk.azure()
	if err != nil {
		return nil, err
	}
	resp, err := retry(ctx, c.maxRetries, func() (azcosmos.ItemResponse, error) {
		return c.client.ReadItem(ctx, key, id, nil)
	})
	if err != nil {
		return nil, mapError(err)
	}
	var item Record
	if err := json.Unmarshal(resp.Value, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}
	return item, nil
}

func (c *cosmosContainer) CreateItem(ctx context.Context, pk PartitionKey, item Record) error {
	return c.writeItem(ctx, pk, item, c.client.CreateItem)
}

func (c *cosmosContainer) UpsertItem(ctx context.Context, pk PartitionKey, item Record) error {
	return c.writeItem(ctx, pk, item, c.client.UpsertItem)
}

type itemWriter func(ctx context.Context, pk azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)

func (c *cosmosContainer) writeItem(ctx context.Context, pk PartitionKey, item Record, write itemWriter) error {
	key, err := pk.azure()
	if err != nil {
		return err
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}
	_, err = retry(ctx, c.maxRetries, func() (azcosmos.ItemResponse, error) {
		return write(ctx, key, body, nil)
	})
	return mapError(err)
}

func (c *cosmosContainer) DeleteItem(ctx context.Context, pk PartitionKey, id string) error {
	key, err := pk.azure()
	if err != nil {
		return err
	}
	_, err = retry(ctx, c.maxRetries, func() (azcosmos.ItemResponse, error) {
		return c.client.DeleteItem(ctx, key, id, nil)
	})
	return mapError(err)
}

func (c *cosmosContainer) ExecuteBatch(ctx context.Context, pk PartitionKey, ops []BatchOperation) ([]int, error) {
	if len(ops) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d operations", ErrBatchTooLarge, len(ops))
	}
	key, err := pk.azure()
	if err != nil {
		return nil, err
	}

	batch := c.client.NewTransactionalBatch(key)
	for _, op := range ops {
		switch op.Kind {
		case OpCreate, OpUpsert:
			body, err := json.Marshal(op.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to encode batch item: %w", err)
			}
			if op.Kind == OpCreate {
				batch.CreateItem(body, nil)
			} else {
				batch.UpsertItem(body, nil)
			}
		case OpDelete:
			batch.DeleteItem(op.ID, nil)
		default:
			return nil, fmt.Errorf("unsupported batch operation %q", op.Kind)
		}
	}

	resp, err := retry(ctx, c.maxRetries, func() (azcosmos.TransactionalBatchResponse, error) {
		return c.client.ExecuteTransactionalBatch(ctx, batch, nil)
	})
	if err != nil {
		return nil, mapError(err)
	}

	statuses := make([]int, len(resp.OperationResults))
	for i, r := range resp.OperationResults {
		statuses[i] = int(r.StatusCode)
	}
	if !resp.Success {
		c.logger.Warn("CosmosGateway", "Transactional batch rolled back", map[string]interface{}{
			"container":     c.name,
			"partition_key": pk.String(),
			"operations":    len(ops),
		})
	}
	return statuses, nil
}

// retry re-runs op while the store reports throttling or transient unavailability.
func retry[T any](ctx context.Context, maxTries int, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxTries)))
}

func isRetryable(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	switch respErr.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusRequestTimeout, 449:
		return true
	}
	return false
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
