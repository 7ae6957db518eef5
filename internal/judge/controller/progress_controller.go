// Package controller exposes the worker's read-only HTTP surface: the
// latest judging snapshot per submission plus a health probe.
package controller

import (
	"github.com/gin-gonic/gin"

	"orbitoj/internal/judge/repository"
	"orbitoj/pkg/utils/response"
)

type ProgressController struct {
	repo *repository.ProgressRepository
}

func NewProgressController(repo *repository.ProgressRepository) *ProgressController {
	return &ProgressController{repo: repo}
}

// RegisterRoutes mounts the judge API under the given router group.
func (ctl *ProgressController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/submissions/:id/progress", ctl.GetProgress)
}

// GetProgress returns the latest stored snapshot for a submission.
func (ctl *ProgressController) GetProgress(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "submission id is required")
		return
	}
	snapshot, err := ctl.repo.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snapshot)
}
