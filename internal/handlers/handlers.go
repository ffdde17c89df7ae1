package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"affiliate-tracking-system/internal/content"
	"affiliate-tracking-system/internal/jobs"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/repository"
	"affiliate-tracking-system/internal/services"
	"affiliate-tracking-system/internal/tags"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

func countryParam(raw string) string {
	if country := strings.TrimSpace(raw); country != "" {
		return country
	}
	return services.DefaultCountry
}

func (s *Server) PostLead(c *gin.Context) {
	var req models.LeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.ProductID.String()) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.leads.Ingest(ctx, req, models.ClientInfo{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, tags.ErrNoAvailableTags):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No available tags"})
	case errors.Is(err, services.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server busy, retry later"})
	default:
		s.logger.WithError(err).WithField("product_id", req.ProductID).Error("Failed to ingest lead")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign tracking id"})
	}
}

func (s *Server) GetTrackingID(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	country := countryParam(c.Query("country"))
	tag, err := s.tags.FirstAvailable(ctx, country)
	if err != nil {
		if errors.Is(err, tags.ErrNoAvailableTags) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No available tags"})
			return
		}
		s.logger.WithError(err).WithField("country", country).Error("Failed to load tracking id")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tracking id"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trackingId":    tag.Name,
		"trackingDocId": tag.DocumentID,
		"country":       country,
	})
}

func (s *Server) PostFbclid(c *gin.Context) {
	var req models.FbclidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	updated, err := s.tags.AttachFbclid(ctx, countryParam(req.Country), req.Tag, req.Fbclid, req.ProductID.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{"tag": req.Tag}).Error("Failed to attach fbclid")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to attach fbclid"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

func (s *Server) PostProduct(c *gin.Context) {
	if s.products == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Product publishing is not configured"})
		return
	}
	var req models.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	resp, err := s.products.PublishProduct(ctx, req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, content.ErrInvalidProductLink):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tags.ErrNoAvailableTags):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No available tags"})
	case errors.Is(err, services.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server busy, retry later"})
	default:
		s.logger.WithError(err).WithField("query", req.Query).Error("Failed to publish product")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to publish product"})
	}
}

func (s *Server) GetStats(c *gin.Context) {
	timeframe := c.DefaultQuery("timeframe", "24h")
	window, err := services.ParseTimeframe(timeframe)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	stats, err := s.stats.PurchaseStats(ctx, window)
	if err != nil {
		s.logger.WithError(err).Error("Failed to compute stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": timeframe, "stats": stats})
}

func (s *Server) RunJob(c *gin.Context) {
	name := c.Param("name")
	switch err := s.jobs.Trigger(name); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "started"})
	case errors.Is(err, jobs.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"job": name, "error": "Job already running"})
	case errors.Is(err, jobs.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"job": name, "error": "Unknown job"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"job": name, "error": err.Error()})
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"version":   "1.0.0",
	})
}
