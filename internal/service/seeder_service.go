package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"analytics-chat-be/internal/dto"
	"analytics-chat-be/internal/pkg/logger"
	"analytics-chat-be/pkg/cosmos"
	"analytics-chat-be/pkg/events"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultPartitionKey = "partitionKey"
	goldContainer       = "gold"
	goldPartitionKey    = "pkType,pkFilter"
)

// Gold documents carry dates like 20251120 in pkFilter; they are stored as numbers.
var goldIntFields = []string{"pkFilter", "recordId"}

var goldFloatFields = []string{
	"transactionAmount", "authorizationAmount", "averageTransaction",
	"largestTransaction", "processingVolume",
	"price", "open", "high", "low", "close", "revenue", "profit", "market_cap",
}

type ISeederService interface {
	SeedFromFile(ctx context.Context, request *dto.SeedRequest) (*dto.SeedResult, error)
	Seed(ctx context.Context, request *dto.SeedRequest, items []cosmos.Record) (*dto.SeedResult, error)
}

type seederService struct {
	containers ContainerProvider
	bulk       *cosmos.BulkExecutor
	publisher  events.Publisher
	validate   *validator.Validate
	logger     logger.ILogger
}

func NewSeederService(containers ContainerProvider, bulk *cosmos.BulkExecutor, publisher events.Publisher, log logger.ILogger) ISeederService {
	return &seederService{
		containers: containers,
		bulk:       bulk,
		publisher:  publisher,
		validate:   validator.New(),
		logger:     log,
	}
}

func (s *seederService) SeedFromFile(ctx context.Context, request *dto.SeedRequest) (*dto.SeedResult, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	items, err := loadItems(request.FilePath)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		s.logger.Warn("Seeder", "No items found", map[string]interface{}{"file": request.FilePath})
		return &dto.SeedResult{Errors: []string{}}, nil
	}
	return s.Seed(ctx, request, items)
}

// Seed prepares items and bulk-creates them. Items that cannot be prepared are
// counted as failed and never reach the store.
func (s *seederService) Seed(ctx context.Context, request *dto.SeedRequest, items []cosmos.Record) (*dto.SeedResult, error) {
	c, err := s.containers.Container(request.Container)
	if err != nil {
		return nil, err
	}

	keyField := request.PartitionKey
	if keyField == "" {
		keyField = defaultPartitionKey
	}
	if request.Container == goldContainer && keyField == defaultPartitionKey {
		keyField = goldPartitionKey
		s.logger.Info("Seeder", "Gold container detected, using hierarchical partition key", map[string]interface{}{
			"partition_key": keyField,
		})
	}
	spec := cosmos.ParseKeySpec(keyField)

	result := &dto.SeedResult{Total: len(items), Errors: []string{}}
	prepared := make([]cosmos.Record, 0, len(items))
	for i, item := range items {
		p, err := prepareItem(item, request, spec)
		if err != nil {
			msg := fmt.Sprintf("Error processing item %d: %v", i, err)
			s.logger.Error("Seeder", msg, nil)
			result.Errors = append(result.Errors, msg)
			continue
		}
		prepared = append(prepared, p)
	}

	if len(prepared) > 0 {
		s.logger.Info("Seeder", "Starting bulk insert", map[string]interface{}{
			"items":     len(prepared),
			"container": request.Container,
		})
		bulk, err := s.bulk.BulkCreate(ctx, c, prepared, spec)
		if err != nil {
			return nil, err
		}
		result.Success = bulk.Count
		result.Errors = append(result.Errors, bulk.Errors...)
	}
	result.Failed = result.Total - result.Success

	s.logger.Info("Seeder", "Bulk insert completed", map[string]interface{}{
		"success": result.Success,
		"failed":  result.Failed,
		"total":   result.Total,
	})

	if err := s.publisher.Publish(ctx, events.NewBulkCompletedEvent(events.BulkCompleted{
		Operation: string(cosmos.OpCreate),
		Container: request.Container,
		Requested: result.Total,
		Succeeded: result.Success,
		Failed:    result.Failed,
	})); err != nil {
		s.logger.Warn("Seeder", "Failed to publish event", map[string]interface{}{"error": err.Error()})
	}

	return result, nil
}

func prepareItem(item cosmos.Record, request *dto.SeedRequest, spec cosmos.KeySpec) (cosmos.Record, error) {
	processed := make(cosmos.Record, len(item)+2)
	for k, v := range item {
		processed[k] = v
	}

	idField := request.IDField
	if idField == "" {
		idField = "id"
	}
	if isBlank(processed[idField]) {
		if !request.AutoID {
			return nil, fmt.Errorf("missing required field: %s", idField)
		}
		processed[idField] = uuid.NewString()
	}

	if request.Container == goldContainer {
		normalizeGold(processed)
	}

	if spec.IsHierarchical() {
		var missing []string
		for _, field := range spec {
			if processed[field] == nil {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			// a single source field cannot fill a multi-field key
			if !request.AutoPartition || request.PartitionFrom != "" {
				return nil, fmt.Errorf("missing required hierarchical partition key fields: %v", missing)
			}
			for _, field := range missing {
				processed[field] = uuid.NewString()
			}
		}
	} else {
		field := spec[0]
		if isBlank(processed[field]) {
			switch {
			case request.PartitionFrom != "" && processed[request.PartitionFrom] != nil:
				processed[field] = processed[request.PartitionFrom]
			case request.AutoPartition:
				processed[field] = uuid.NewString()
			default:
				return nil, fmt.Errorf("missing required field: %s", field)
			}
		}
	}

	for field, target := range request.TypeMapping {
		v, ok := processed[field]
		if !ok || v == nil {
			continue
		}
		converted, err := convertType(v, target)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		processed[field] = converted
	}

	return processed, nil
}

func normalizeGold(item cosmos.Record) {
	for _, field := range goldFloatFields {
		if v, ok := item[field]; ok && !isBlank(v) {
			if f, err := toFloat64(v); err == nil {
				item[field] = f
			}
		}
	}
	for _, field := range goldIntFields {
		v, ok := item[field]
		if !ok || isBlank(v) {
			continue
		}
		if n, ok := digitsToInt(v); ok {
			item[field] = n
		}
	}
}

func digitsToInt(v any) (int64, bool) {
	switch t := v.(type) {
	case string:
		if !isDigits(t) {
			return 0, false
		}
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case float64:
		if t == math.Trunc(t) {
			return int64(t), true
		}
	case int:
		return int64(t), true
	case int64:
		return t, true
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func convertType(v any, target string) (any, error) {
	switch target {
	case "int":
		switch t := v.(type) {
		case string:
			return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		case float64:
			return int64(t), nil
		}
	case "float":
		return toFloat64(v)
	case "bool":
		switch t := v.(type) {
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "1", "yes", "y":
				return true, nil
			}
			return false, nil
		case float64:
			return t != 0, nil
		case bool:
			return t, nil
		}
	case "datetime":
		if s, ok := v.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				ts, err = time.Parse("2006-01-02T15:04:05", s)
			}
			if err != nil {
				ts, err = time.Parse(time.DateOnly, s)
			}
			if err != nil {
				return nil, err
			}
			return ts.UTC().Format(time.RFC3339Nano), nil
		}
	}
	return v, nil
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	}
	return 0, fmt.Errorf("cannot convert %T to float", v)
}

func loadItems(path string) ([]cosmos.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSONItems(f)
	case ".csv":
		return decodeCSVItems(f)
	}
	return nil, fmt.Errorf("%w: %s (use .json or .csv)", ErrUnsupportedFileType, filepath.Ext(path))
}

// decodeJSONItems accepts an array or an object with an "items" array.
func decodeJSONItems(r io.Reader) ([]cosmos.Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var items []cosmos.Record
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []cosmos.Record `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Items == nil {
		return nil, errors.New("JSON must be an array or object with 'items' key")
	}
	return wrapped.Items, nil
}

// decodeCSVItems reads rows keyed by the header; every value stays a string.
func decodeCSVItems(r io.Reader) ([]cosmos.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var items []cosmos.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		item := make(cosmos.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				item[col] = row[i]
			} else {
				item[col] = nil
			}
		}
		items = append(items, item)
	}
	return items, nil
}
