package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-placement-api/internal/middleware"
	"github.com/noah-isme/internship-placement-api/internal/models"
)

// Routes bundles the placement handlers mounted under the API prefix.
type Routes struct {
	Batches     *BatchHandler
	Internships *InternshipHandler
	Evaluations *EvaluationHandler
}

// Register mounts the placement routes on group. auth runs before every route.
func (r Routes) Register(group *gin.RouterGroup, auth gin.HandlerFunc) {
	secured := group.Group("")
	secured.Use(auth)

	admin := middleware.RequireRoles(models.RoleAdmin)
	supervisors := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher, models.RoleMentor)
	adminOrStudent := middleware.RequireRoles(models.RoleAdmin, models.RoleStudent)

	batches := secured.Group("/batches")
	batches.GET("", r.Batches.List)
	batches.GET("/:id", r.Batches.Get)
	batches.POST("", admin, r.Batches.Create)
	batches.POST("/:id/retire", admin, r.Batches.Retire)

	internships := secured.Group("/internships")
	internships.GET("", r.Internships.List)
	internships.GET("/:id", r.Internships.Get)
	internships.POST("", adminOrStudent, r.Internships.Create)
	internships.POST("/:id/approve", admin, r.Internships.Approve)
	internships.POST("/:id/reject", admin, r.Internships.Reject)
	internships.POST("/:id/assign", admin, r.Internships.Assign)
	internships.POST("/:id/start", supervisors, r.Internships.Start)
	internships.POST("/:id/complete", supervisors, r.Internships.Complete)
	internships.POST("/:id/cancel", adminOrStudent, r.Internships.Cancel)

	internships.PUT("/:id/evaluations/:role", r.Evaluations.Submit)
	internships.GET("/:id/evaluations", r.Evaluations.List)
	internships.GET("/:id/score", r.Evaluations.Score)
}
