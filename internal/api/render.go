package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NehoraiHadad/podcasto-engine/internal/core/domain"
)

// stageOrder is the canonical pipeline order for rendering.
var stageOrder = []domain.Stage{
	domain.StageIngestion,
	domain.StageScript,
	domain.StageImage,
	domain.StageAudio,
	domain.StagePublish,
}

func renderEpisodeSummary(s *domain.EpisodeCostSummary) gin.H {
	byCategory := gin.H{}
	for _, cat := range domain.Categories {
		byCategory[string(cat)] = s.Totals.Get(cat).String()
	}
	return gin.H{
		"episode_id":  s.EpisodeID,
		"total_cost":  s.TotalCost.String(),
		"by_category": byCategory,
		"event_count": s.EventCount,
		"updated_at":  s.UpdatedAt,
	}
}

func renderEvents(events []*domain.CostEvent) []gin.H {
	out := make([]gin.H, 0, len(events))
	for _, ev := range events {
		out = append(out, gin.H{
			"id":         ev.ID,
			"service":    ev.Service,
			"category":   string(ev.Category),
			"quantity":   ev.Quantity.String(),
			"unit":       ev.Unit,
			"unit_price": ev.UnitPrice.String(),
			"total_cost": ev.TotalCost.String(),
			"created_at": ev.CreatedAt,
		})
	}
	return out
}

// renderStages folds the processing log into one row per stage. The latest
// entry per stage decides the stage's state; stages with no entries are
// pending.
func renderStages(logs []*domain.ProcessingLog) []gin.H {
	latest := make(map[domain.Stage]*domain.ProcessingLog)
	attempts := make(map[domain.Stage]int)
	for _, l := range logs {
		latest[l.Stage] = l // logs arrive oldest first
		attempts[l.Stage]++
	}

	out := make([]gin.H, 0, len(stageOrder))
	for _, stage := range stageOrder {
		row := gin.H{
			"stage":    string(stage),
			"state":    "pending",
			"attempts": attempts[stage],
		}
		if l, ok := latest[stage]; ok {
			switch l.Status {
			case domain.LogStatusStarted:
				row["state"] = "running"
				row["started_at"] = l.StartedAt
			case domain.LogStatusCompleted:
				row["state"] = "completed"
				if l.DurationMS != nil {
					row["duration_ms"] = *l.DurationMS
				}
			case domain.LogStatusFailed:
				row["state"] = "failed"
				row["error_code"] = l.ErrorCode
				if l.ErrorDetail != "" {
					row["error_detail"] = l.ErrorDetail
				}
				if l.DurationMS != nil {
					row["duration_ms"] = *l.DurationMS
				}
			}
		}
		out = append(out, row)
	}
	return out
}

func renderAttempts(logs []*domain.ProcessingLog) []gin.H {
	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		row := gin.H{
			"stage":      string(l.Stage),
			"attempt":    l.Attempt,
			"status":     string(l.Status),
			"started_at": l.StartedAt.Format(time.RFC3339),
		}
		if l.CompletedAt != nil {
			row["completed_at"] = l.CompletedAt.Format(time.RFC3339)
		}
		if l.DurationMS != nil {
			row["duration_ms"] = *l.DurationMS
		}
		if l.ErrorCode != "" {
			row["error_code"] = l.ErrorCode
		}
		out = append(out, row)
	}
	return out
}

func renderDailyUsage(rows []*domain.DailyUsageRow) []gin.H {
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"service":     r.Service,
			"category":    string(r.Category),
			"quantity":    r.Quantity.String(),
			"total_cost":  r.TotalCost.String(),
			"event_count": r.EventCount,
		})
	}
	return out
}
