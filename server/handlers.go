package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/lexgraph/core"
	"github.com/poiesic/lexgraph/search"
)

// Error codes of the error envelope.
const (
	codeGraphNotReady  = "graph_not_ready"
	codeNotFound       = "not_found"
	codeInvalidRequest = "invalid_request"
	codeTimeout        = "timeout"
	codeInternal       = "internal"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondServiceError maps service errors onto statuses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrGraphNotReady):
		respondError(c, http.StatusServiceUnavailable, codeGraphNotReady, err)
	case errors.Is(err, search.ErrNotFound):
		respondError(c, http.StatusNotFound, codeNotFound, err)
	case errors.Is(err, search.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		respondError(c, http.StatusGatewayTimeout, codeTimeout, err)
	default:
		respondError(c, http.StatusInternalServerError, codeInternal, err)
	}
}

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	st, err := s.states.Current()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "starting",
			"ready":     false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"ready":         true,
		"graph_version": st.Version,
		"nodes":         st.Graph.Len(),
		"degraded":      st.Degraded,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// searchGet handles GET /api/search?q=&k=&offset=&scope=.
func (s *Server) searchGet(c *gin.Context) {
	req := search.Request{Query: c.Query("q"), Scope: c.Query("scope")}
	var err error
	if req.K, err = intParam(c, "k"); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	if req.Offset, err = intParam(c, "offset"); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	s.runSearch(c, req)
}

// searchPost handles POST /api/search with a JSON body.
func (s *Server) searchPost(c *gin.Context) {
	var req search.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}
	s.runSearch(c, req)
}

func (s *Server) runSearch(c *gin.Context, req search.Request) {
	resp, err := s.service.Search(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// provision handles GET /api/provisions/:id.
func (s *Server) provision(c *gin.Context) {
	d, err := s.service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// acts handles GET /api/acts.
func (s *Server) acts(c *gin.Context) {
	acts, err := s.service.Acts(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acts": acts})
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return v, nil
}
