package card

import (
	"time"

	"github.com/zombor/cardscan/internal/scan"
)

// Scan represents a scanning session exposed over the API
type Scan struct {
	ID          string      `json:"id"`
	Status      scan.Status `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// FrameRequest is one frame of already-recognized text
type FrameRequest struct {
	Lines []string `json:"lines"`
}
