package api

import (
	"github.com/ignite/list-builder/internal/llm"
	"github.com/ignite/list-builder/internal/mailinglist"
	"github.com/ignite/list-builder/internal/segmentation"
)

// TargetRequest names a table and the filters applied to it.
type TargetRequest struct {
	DatabaseID int                        `json:"databaseId" validate:"gt=0"`
	TableID    int                        `json:"tableId" validate:"gt=0"`
	Filters    []segmentation.FilterValue `json:"filters" validate:"omitempty,max=100,dive"`
}

func (t TargetRequest) target() mailinglist.Target {
	return mailinglist.Target{DatabaseID: t.DatabaseID, TableID: t.TableID, Filters: t.Filters}
}

// PreviewRequest is a target plus a row limit.
type PreviewRequest struct {
	TargetRequest
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

// CampaignOptions control suppression and history logging. A nil
// LookbackDays uses the configured default; 0 disables the window.
type CampaignOptions struct {
	HistoryTableID int    `json:"historyTableId" validate:"gte=0"`
	CampaignCode   string `json:"campaignCode" validate:"max=64,campaigncode"`
	LookbackDays   *int   `json:"lookbackDays" validate:"omitempty,gte=0,lte=3650"`
	LogHistory     bool   `json:"logHistory"`
	Format         string `json:"format" validate:"omitempty,oneof=csv json"`
}

// CampaignExportRequest is a target exported under a campaign.
type CampaignExportRequest struct {
	TargetRequest
	CampaignOptions
}

// FieldValuesRequest asks for the value distribution of one field.
type FieldValuesRequest struct {
	DatabaseID int `json:"databaseId" validate:"gt=0"`
	TableID    int `json:"tableId" validate:"gt=0"`
	FieldID    int `json:"fieldId" validate:"gt=0"`
	Limit      int `json:"limit" validate:"gte=0,lte=1000"`
}

// FieldSamplesRequest asks for distributions of several fields.
type FieldSamplesRequest struct {
	DatabaseID int   `json:"databaseId" validate:"gt=0"`
	TableID    int   `json:"tableId" validate:"gt=0"`
	FieldIDs   []int `json:"fieldIds" validate:"required,min=1,max=50,dive,gt=0"`
}

// AnalyzeRequest asks for segment suggestions. Without a table the whole
// database schema is offered to the model.
type AnalyzeRequest struct {
	DatabaseID  int    `json:"databaseId" validate:"gt=0"`
	TableID     int    `json:"tableId" validate:"gte=0"`
	Description string `json:"description" validate:"required,max=4000"`
}

// AIPreviewRequest previews the rows matched by suggestions. Suggestions
// from an earlier analyze call are reused; otherwise Description is sent
// to the model first.
type AIPreviewRequest struct {
	DatabaseID    int              `json:"databaseId" validate:"gt=0"`
	TableID       int              `json:"tableId" validate:"gt=0"`
	Description   string           `json:"description" validate:"required_without=Suggestions,max=4000"`
	Suggestions   []llm.Suggestion `json:"suggestions" validate:"omitempty,max=50"`
	MinConfidence float64          `json:"minConfidence" validate:"gte=0,lte=1"`
	Limit         int              `json:"limit" validate:"gte=0,lte=1000"`
}

// AIExportRequest exports the rows matched by suggestions, optionally
// under a campaign.
type AIExportRequest struct {
	AIPreviewRequest
	CampaignOptions
}
