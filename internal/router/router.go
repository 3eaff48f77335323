package router

import (
	"github.com/gin-gonic/gin"

	"github.com/rikseotools/vence/internal/middleware"
	"github.com/rikseotools/vence/pkg/logger"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Observer is implemented by the metrics handler.
type Observer interface {
	Middleware() gin.HandlerFunc
	Handler() gin.HandlerFunc
}

// Health registers the probe endpoints.
type Health interface {
	RegisterRoutes(gin.IRouter)
}

type RouterConfig struct {
	Mode        string
	RateLimiter middleware.RateLimiterConfig
	CORS        middleware.CORSConfig
	Timeout     middleware.TimeoutConfig
	Security    middleware.SecurityConfig

	// MaxBodyBytes caps request bodies on the API group.
	MaxBodyBytes int64
}

type Router struct {
	engine *gin.Engine
}

func NewRouter(log *logger.Logger, observer Observer, health Health, api []Handler, config RouterConfig) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.SecurityHeaders(config.Security),
	)
	if observer != nil {
		engine.Use(observer.Middleware())
		engine.GET("/metrics", observer.Handler())
	}
	if health != nil {
		health.RegisterRoutes(engine)
	}

	v1 := engine.Group("/api/v1")
	v1.Use(
		middleware.CORS(config.CORS),
		middleware.NoStore(),
		middleware.BodyLimit(config.MaxBodyBytes),
		middleware.NewRateLimiter(config.RateLimiter).RateLimit(),
		middleware.Timeout(config.Timeout),
		middleware.ErrorHandler(log),
	)
	for _, h := range api {
		h.RegisterRoutes(v1)
	}

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
