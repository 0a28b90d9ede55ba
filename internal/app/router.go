package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/atis-gateway/internal/handler"
	"github.com/noah-isme/atis-gateway/internal/middleware"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/pkg/config"
	"github.com/noah-isme/atis-gateway/pkg/logger"
	corsmiddleware "github.com/noah-isme/atis-gateway/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/atis-gateway/pkg/middleware/requestid"
)

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics, "/metrics"))

	metrics := handler.NewMetricsHandler(a.Metrics, a.Probes())
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)
	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.Config.APIPrefix)
	exports := handler.NewExportHandler(a.Exports)
	if a.BulkExports() {
		// The signed token is the credential.
		api.GET("/export/:token", exports.Download)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(a.Auth), middleware.WithResponseMeta())

	reports := handler.NewReportHandler(a.Attendance, a.AssessmentReports, a.Exports)
	surveys := handler.NewSurveyHandler(a.SurveyResults)
	secured.GET("/attendance/reports", reports.Attendance)
	secured.GET("/attendance/reports/export", reports.AttendanceExport)
	secured.GET("/assessments/reports", reports.Assessment)
	secured.GET("/surveys/overview", surveys.Overview)
	secured.GET("/surveys/:id/export", surveys.Export)
	if a.BulkExports() {
		secured.POST("/surveys/exports", exports.CreateBulk)
		secured.GET("/exports/:id", exports.Status)
	}

	secured.GET("/institutions", handler.NewListHandler[models.Institution](a.Institutions).List)
	secured.GET("/surveys", handler.NewListHandler[models.Survey](a.Surveys).List)
	secured.GET("/students", handler.NewListHandler[models.Student](a.Students).List)
	secured.GET("/tasks", handler.NewListHandler[models.Task](a.Tasks).List)
	secured.GET("/tasks/assigned", handler.NewListHandler[models.Task](a.AssignedTasks).List)
	secured.GET("/links", handler.NewListHandler[models.LinkResource](a.Links).List)
	secured.GET("/assessments", handler.NewListHandler[models.AssessmentResult](a.Assessments).List)

	mutations := handler.NewMutationHandler(a.Mutations)
	writable := map[models.Resource]string{
		models.ResourceInstitutions: "/institutions",
		models.ResourceSurveys:      "/surveys",
		models.ResourceStudents:     "/students",
		models.ResourceTasks:        "/tasks",
		models.ResourceLinks:        "/links",
		models.ResourceAssessments:  "/assessments",
	}
	for resource, path := range writable {
		secured.POST(path, mutations.Create(resource))
		secured.PUT(path+"/:id", mutations.Update(resource))
		secured.DELETE(path+"/:id", mutations.Delete(resource))
		secured.PATCH(path+"/:id/status", mutations.ToggleStatus(resource))
	}

	admin := secured.Group("")
	admin.Use(middleware.RequireRoles(models.RoleSuperAdmin))
	admin.POST("/cache/invalidate", handler.NewCacheHandler(a.Cache).Invalidate)
	admin.GET("/metrics/summary", metrics.Snapshot)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})
	return r
}
