package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostCategory groups services for aggregation.
type CostCategory string

const (
	CategoryAIText       CostCategory = "ai_text"
	CategoryAIImage      CostCategory = "ai_image"
	CategoryAITTS        CostCategory = "ai_tts"
	CategoryCompute      CostCategory = "compute"
	CategoryStorageOps   CostCategory = "storage_ops"
	CategoryStorageBytes CostCategory = "storage_bytes"
	CategoryEmail        CostCategory = "email"
	CategoryQueue        CostCategory = "queue"
	CategoryOther        CostCategory = "other"
)

// Categories lists every cost category in a stable order.
var Categories = []CostCategory{
	CategoryAIText,
	CategoryAIImage,
	CategoryAITTS,
	CategoryCompute,
	CategoryStorageOps,
	CategoryStorageBytes,
	CategoryEmail,
	CategoryQueue,
	CategoryOther,
}

// CostEvent is one immutable record of a billable action.
// Rows are append-only; summaries are derived from them.
type CostEvent struct {
	ID        string
	Service   string
	Category  CostCategory
	Quantity  decimal.Decimal
	Unit      string
	UnitPrice decimal.Decimal
	TotalCost decimal.Decimal
	EpisodeID string
	PodcastID string
	UserID    string
	Metadata  map[string]any
	CreatedAt time.Time
}
