package billing

import "github.com/NehoraiHadad/podcasto-engine/internal/core/domain"

// serviceCategories is the fixed service-to-category mapping. Services not
// listed here land in the "other" category.
var serviceCategories = map[string]domain.CostCategory{
	"gemini-text":   domain.CategoryAIText,
	"openai-text":   domain.CategoryAIText,
	"gemini-image":  domain.CategoryAIImage,
	"openai-image":  domain.CategoryAIImage,
	"google-tts":    domain.CategoryAITTS,
	"openai-tts":    domain.CategoryAITTS,
	"compute":       domain.CategoryCompute,
	"blob-put":      domain.CategoryStorageOps,
	"blob-get":      domain.CategoryStorageOps,
	"blob-list":     domain.CategoryStorageOps,
	"blob-delete":   domain.CategoryStorageOps,
	"blob-bytes":    domain.CategoryStorageBytes,
	"email-send":    domain.CategoryEmail,
	"queue-publish": domain.CategoryQueue,
}

// CategoryFor maps a service name to its cost category.
func CategoryFor(service string) domain.CostCategory {
	if c, ok := serviceCategories[service]; ok {
		return c
	}
	return domain.CategoryOther
}
