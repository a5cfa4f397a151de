package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorsstag/internal/config"
	"gorsstag/internal/security"
	"gorsstag/internal/storage"

	"github.com/gin-gonic/gin"
)

const defaultLimit = 10

// Server exposes the public read API. Ingestion state never leaks through
// it: a degraded feed or tagging service only shows up as fewer or untagged
// articles, never as an error response.
type Server struct {
	router *gin.Engine
	store  storage.Storage
	port   int
}

func NewServer(store storage.Storage, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	security.SetupMiddleware(router, &cfg.Security)

	server := &Server{
		router: router,
		store:  store,
		port:   cfg.Port,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/articles", s.getArticles)
	s.router.GET("/tags", s.getTags)
	s.router.GET("/health", s.healthCheck)
}

func (s *Server) Start() error {
	return s.router.Run(":" + strconv.Itoa(s.port))
}

// StartWithContext serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) StartWithContext(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(s.port),
		Handler: s.router,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %v", err)
		}
		return ctx.Err()
	}
}

// getArticles lists stored articles, newest first. Repeated tag parameters
// combine with AND semantics: an article must carry every requested tag.
func (s *Server) getArticles(c *gin.Context) {
	limit, err := parseQueryInt(c, "limit", defaultLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	offset, err := parseQueryInt(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tags []string
	for _, tag := range c.QueryArray("tag") {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	articles, err := s.store.ListByTags(tags, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list articles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) getTags(c *gin.Context) {
	counts, err := s.store.TagCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tags"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": counts})
}

func (s *Server) healthCheck(c *gin.Context) {
	count, err := s.store.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"article_count": count,
	})
}

// parseQueryInt parses a non-negative integer query parameter. Invalid input
// is rejected rather than clamped; an out-of-range offset is not an error
// and simply yields an empty result set from storage.
func parseQueryInt(c *gin.Context, name string, defaultVal int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return defaultVal, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid %s parameter: must be a non-negative integer", name)
	}
	return value, nil
}
