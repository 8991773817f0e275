package service

import (
	"context"
	"fmt"
	"strconv"

	"analytics-chat-be/internal/dto"
	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/events"

	"github.com/go-playground/validator/v10"
)

var deletableContainers = map[string]bool{
	"conversations": true,
	"users":         true,
	"gold":          true,
}

// ValidOperators lists the accepted pkFilter comparisons, in display order.
var ValidOperators = []string{">=", "<=", ">", "<", "==", "!="}

const selectByPartition = "SELECT c.id, c.pkType, c.pkFilter FROM c WHERE c.pkType = @pkType AND c.pkFilter %s @pkFilter"

type IDeleterService interface {
	DeleteByPartitionKey(ctx context.Context, request *dto.DeleteRequest) (*dto.DeleteResult, error)
}

type deleterService struct {
	containers ContainerProvider
	bulk       *cosmos.BulkExecutor
	publisher  events.Publisher
	validate   *validator.Validate
	logger     logger.ILogger
}

func NewDeleterService(containers ContainerProvider, bulk *cosmos.BulkExecutor, publisher events.Publisher, log logger.ILogger) IDeleterService {
	return &deleterService{
		containers: containers,
		bulk:       bulk,
		publisher:  publisher,
		validate:   validator.New(),
		logger:     log,
	}
}

// sqlOperator maps a criteria to the store's comparison operator. Empty
// criteria means exact match.
func sqlOperator(criteria string) (string, error) {
	if criteria == "" {
		return "=", nil
	}
	for _, op := range ValidOperators {
		if op == criteria {
			if op == "==" {
				return "=", nil
			}
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %v)", ErrInvalidOperator, criteria, ValidOperators)
}

// filterValue binds digit-only filters as numbers, matching how the seeder
// stores them.
func filterValue(pkFilter string) any {
	if isDigits(pkFilter) {
		if n, err := strconv.ParseInt(pkFilter, 10, 64); err == nil {
			return n
		}
	}
	return pkFilter
}

// DeleteByPartitionKey finds documents under pkType whose pkFilter matches and
// deletes them, each under its own [pkType, pkFilter] key. A dry run only
// counts.
func (ds *deleterService) DeleteByPartitionKey(ctx context.Context, request *dto.DeleteRequest) (*dto.DeleteResult, error) {
	if err := ds.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !deletableContainers[request.Container] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContainer, request.Container)
	}
	op, err := sqlOperator(request.Criteria)
	if err != nil {
		return nil, err
	}

	c, err := ds.containers.Container(request.Container)
	if err != nil {
		return nil, err
	}

	pkFilter := filterValue(request.PKFilter)
	params := []cosmos.QueryParameter{
		{Name: "@pkType", Value: request.PKType},
		{Name: "@pkFilter", Value: pkFilter},
	}
	opts := cosmos.QueryOptions{CrossPartition: true}
	if request.Criteria == "" {
		opts = cosmos.QueryOptions{PartitionKey: cosmos.NewPartitionKey(request.PKType, pkFilter)}
	}

	ds.logger.Info("Deleter", "Querying items", map[string]interface{}{
		"container": request.Container,
		"pk_type":   request.PKType,
		"pk_filter": request.PKFilter,
		"operator":  op,
	})

	rows, err := c.Query(ctx, fmt.Sprintf(selectByPartition, op), params, opts)
	if err != nil {
		return nil, fmt.Errorf("query items to delete: %w", err)
	}

	result := &dto.DeleteResult{Matched: len(rows), DryRun: request.DryRun, Errors: []string{}}
	if len(rows) == 0 {
		ds.logger.Info("Deleter", "No items found matching the specified partition keys", nil)
		return result, nil
	}

	if request.DryRun {
		result.WouldDelete = len(rows)
		ds.logger.Info("Deleter", "DRY RUN: no items will be deleted", map[string]interface{}{
			"would_delete": result.WouldDelete,
		})
		ds.publishCompleted(ctx, request, result)
		return result, nil
	}

	refs := make([]cosmos.ItemRef, 0, len(rows))
	for _, row := range rows {
		var doc map[string]any
		switch t := row.(type) {
		case map[string]any:
			doc = t
		case cosmos.Record:
			doc = t
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("unexpected row shape %T", row))
			continue
		}
		refs = append(refs, cosmos.ItemRef{
			ID:           fmt.Sprint(doc["id"]),
			PartitionKey: cosmos.NewPartitionKey(request.PKType, doc["pkFilter"]),
		})
	}

	if len(refs) > 0 {
		bulk, err := ds.bulk.BulkDelete(ctx, c, refs)
		if err != nil {
			return nil, err
		}
		result.Deleted = bulk.Count
		result.Failed += bulk.Failed()
		result.Errors = append(result.Errors, bulk.Errors...)
	}

	ds.logger.Info("Deleter", "Delete completed", map[string]interface{}{
		"deleted": result.Deleted,
		"failed":  result.Failed,
	})
	ds.publishCompleted(ctx, request, result)
	return result, nil
}

func (ds *deleterService) publishCompleted(ctx context.Context, request *dto.DeleteRequest, result *dto.DeleteResult) {
	err := ds.publisher.Publish(ctx, events.NewBulkCompletedEvent(events.BulkCompleted{
		Operation: string(cosmos.OpDelete),
		Container: request.Container,
		Requested: result.Matched,
		Succeeded: result.Deleted,
		Failed:    result.Failed,
		DryRun:    result.DryRun,
	}))
	if err != nil {
		ds.logger.Warn("Deleter", "Failed to publish event", map[string]interface{}{"error": err.Error()})
	}
}
