package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "lascaux-backend/docs"
	"lascaux-backend/internal/common/config"
	"lascaux-backend/internal/common/logger"
	"lascaux-backend/internal/common/middleware"
	authhttp "lascaux-backend/internal/features/auth/delivery/http"
	authservice "lascaux-backend/internal/features/auth/service"
	"lascaux-backend/internal/features/auth/token"
	userhttp "lascaux-backend/internal/features/user/delivery/http"
	"lascaux-backend/internal/features/user/repository"
	userservice "lascaux-backend/internal/features/user/service"
)

const (
	serviceName  = "lascaux-backend"
	readyTimeout = 2 * time.Second
)

// Deps is everything the router needs. The store is owned by the caller.
type Deps struct {
	Config *config.Config
	Store  repository.Store
	Codec  *token.Codec
	Auth   authservice.AuthService
	Users  userservice.UserService
}

// NewRouter builds the gin engine with middleware and all routes wired.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	if allowAll(d.Config.Server.Origins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = d.Config.Server.Origins
	}
	router.Use(cors.New(corsConfig))

	router.Use(middleware.Authenticate(d.Codec, d.Store.Users()))

	authhttp.NewAuthHandler(d.Auth).RegisterRoutes(&router.RouterGroup)
	userhttp.NewUserHandler(d.Users).RegisterRoutes(&router.RouterGroup)

	setupOperational(router, d.Store)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}

func allowAll(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func setupOperational(router *gin.Engine, store repository.Store) {
	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unready",
				"error":  "store unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})
}
