package extractor

import (
	"context"

	"Giorgio/backend/go/internal/models"
)

// Extractor 从一段文本中抽取值得长期记住的用户信息。
type Extractor interface {
	Extract(ctx context.Context, text string) ([]models.ExtractionCandidate, error)
}
