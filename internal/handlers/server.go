package handlers

import (
	"context"
	"time"

	"affiliate-tracking-system/internal/middleware"
	"affiliate-tracking-system/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type LeadIngester interface {
	Ingest(ctx context.Context, req models.LeadRequest, client models.ClientInfo) (*models.LeadResponse, error)
}

type TagDirectory interface {
	FirstAvailable(ctx context.Context, country string) (*models.Tag, error)
	AttachFbclid(ctx context.Context, country, tagName, fbclid, productID string) (bool, error)
}

type JobTrigger interface {
	Trigger(name string) error
}

type StatsProvider interface {
	PurchaseStats(ctx context.Context, window time.Duration) (*models.PurchaseStats, error)
}

type ProductPublisher interface {
	PublishProduct(ctx context.Context, req models.ProductRequest) (*models.ProductResponse, error)
}

type Server struct {
	leads    LeadIngester
	tags     TagDirectory
	jobs     JobTrigger
	stats    StatsProvider
	products ProductPublisher
	logger   *logrus.Logger

	requestTimeout time.Duration
	started        time.Time
}

func NewServer(leads LeadIngester, tags TagDirectory, jobs JobTrigger, stats StatsProvider, logger *logrus.Logger) *Server {
	return &Server{
		leads:          leads,
		tags:           tags,
		jobs:           jobs,
		stats:          stats,
		logger:         logger,
		requestTimeout: 30 * time.Second,
		started:        time.Now(),
	}
}

// SetProducts enables product card publishing. Without it the products route
// answers 503.
func (s *Server) SetProducts(products ProductPublisher) {
	s.products = products
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router(corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggingMiddleware(s.logger))
	r.Use(middleware.CORSMiddleware(corsOrigins))

	api := r.Group("/api/v1")
	{
		api.POST("/lead", s.PostLead)
		api.GET("/tracking-id", s.GetTrackingID)
		api.POST("/fbclid", s.PostFbclid)
		api.POST("/products", s.PostProduct)
		api.GET("/stats", s.GetStats)
		api.POST("/jobs/:name/run", s.RunJob)
	}

	r.GET("/health", s.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
