package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/snapbite/mealscan/internal/common"
	"github.com/snapbite/mealscan/internal/config"
	"github.com/snapbite/mealscan/internal/httpapi/handlers"
	"github.com/snapbite/mealscan/internal/httpapi/middleware"
	"github.com/snapbite/mealscan/internal/store/blob"
)

func NewRouter(db *gorm.DB, cfg config.Config, publisher handlers.ScanPublisher, blobs blob.Store) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, publisher, blobs)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.POST("/scans", h.CreateScan)
	authGroup.GET("/scans/:id", h.GetScanJob)
	authGroup.GET("/meals", h.ListMeals)
	authGroup.GET("/meals/:id", h.GetMeal)
	authGroup.DELETE("/meals/:id", h.DeleteMeal)
	authGroup.GET("/ingredients/:id", h.GetIngredient)

	return r
}
