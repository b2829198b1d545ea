package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/vkube-rbacsync/backend/internal/auth"
	"github.com/example/vkube-rbacsync/backend/internal/config"
	"github.com/example/vkube-rbacsync/backend/internal/permtypes"
	"github.com/example/vkube-rbacsync/backend/internal/reconciler"
)

// RegisterRoutes registra todas as rotas /api/v1.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, cat *permtypes.Catalog, rec *reconciler.Reconciler) {
	api := r.Group("/api/v1")

	// Auth
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", loginHandler(cfg))
		authGroup.GET("/me", auth.AuthMiddleware(cfg), meHandler())
	}

	// Clusters CRUD
	clusterGroup := api.Group("/clusters")
	clusterGroup.Use(auth.AuthMiddleware(cfg))
	{
		clusterGroup.GET("", listClustersHandler(cfg))
		clusterGroup.POST("", auth.RequireRole("admin"), createClusterHandler(cfg))
		clusterGroup.GET("/:id", getClusterHandler(cfg))
		clusterGroup.PUT("/:id", auth.RequireRole("admin"), updateClusterHandler(cfg))
		clusterGroup.DELETE("/:id", auth.RequireRole("admin"), deleteClusterHandler(cfg))

		// Permissões por cluster
		clusterGroup.GET("/:id/permissions", listPermissionsHandler(cfg))
		clusterGroup.POST("/:id/permissions", auth.RequireRole("admin"), createPermissionHandler(cfg, cat))

		// Reconciliação
		clusterGroup.POST("/:id/sync", auth.RequireRole("admin"), syncHandler(cfg, rec))
		clusterGroup.GET("/:id/sync", getSyncStatusHandler(cfg, rec))
		clusterGroup.GET("/:id/sync/objects", desiredObjectsHandler(cfg, cat, rec))
	}

	// Permissões (operações por id)
	permGroup := api.Group("/permissions")
	permGroup.Use(auth.AuthMiddleware(cfg))
	{
		permGroup.PUT("/:id", auth.RequireRole("admin"), updatePermissionHandler(cfg, cat))
		permGroup.DELETE("/:id", auth.RequireRole("admin"), deletePermissionHandler(cfg))
	}

	// Catálogo de tiers para as telas de concessão
	api.GET("/permission-types", auth.AuthMiddleware(cfg), listPermissionTypesHandler(cat))

	// Healthcheck simples
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
