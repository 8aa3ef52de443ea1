package inquiry

import (
	"fmt"

	apperrors "github.com/mrwolf/align-server/internal/errors"
	"github.com/mrwolf/align-server/internal/models"
)

// Validate checks the fields of a snapshot that the ranking rules depend on.
func Validate(req models.InquiryRequest) error {
	for i, t := range req.Todos {
		if !models.ValidStatus(t.Status) {
			return apperrors.NewValidationError(fmt.Sprintf("todos[%d].status", i), "状态必须是 pending、in_progress 或 completed")
		}
	}
	for i, m := range req.Milestones {
		if m.Progress < 0 || m.Progress > 100 {
			return apperrors.NewValidationError(fmt.Sprintf("milestones[%d].progress", i), "进度必须在 0 到 100 之间")
		}
	}
	return nil
}
