package dto

import (
	"analytics-chat-be/pkg/agent/executor"
)

type AskRequest struct {
	// ConversationID is generated when empty.
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
	Question       string `json:"question" validate:"required"`
	Container      string `json:"container,omitempty"`
}

type AskResponse struct {
	ConversationID string            `json:"conversation_id"`
	Answer         string            `json:"answer"`
	Suggestions    []string          `json:"suggestions"`
	Metadata       executor.Metadata `json:"metadata"`
}

type SeedRequest struct {
	FilePath  string `json:"file_path" validate:"required,file"`
	Container string `json:"container" validate:"required"`
	// PartitionKey is a field name or a comma-separated list for hierarchical keys.
	PartitionKey  string            `json:"partition_key"`
	IDField       string            `json:"id_field"`
	AutoID        bool              `json:"auto_id"`
	AutoPartition bool              `json:"auto_partition"`
	PartitionFrom string            `json:"partition_from"`
	TypeMapping   map[string]string `json:"type_mapping" validate:"dive,keys,required,endkeys,oneof=int float bool datetime string"`
}

type SeedResult struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

type DeleteRequest struct {
	Container string `json:"container" validate:"required"`
	PKType    string `json:"pk_type" validate:"required"`
	PKFilter  string `json:"pk_filter" validate:"required"`
	// Criteria is one of >= <= > < == != ; empty means exact match.
	Criteria string `json:"criteria,omitempty"`
	DryRun   bool   `json:"dry_run"`
}

type DeleteResult struct {
	Matched     int      `json:"matched"`
	Deleted     int      `json:"deleted"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors"`
	DryRun      bool     `json:"dry_run"`
	WouldDelete int      `json:"would_delete,omitempty"`
}
