package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kvander/bookdex/internal/pkg/errcode"
	"github.com/kvander/bookdex/internal/pkg/response"
	"github.com/kvander/bookdex/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Limit     int       `json:"limit"`
}

func (h *SearchHandler) Get(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "q is required")
		return
	}
	h.respond(c, query, nil, parseUintParam(c.Query("limit"), 0))
}

// Post accepts a caller-supplied query embedding alongside the text, for
// collaborators that batch their own provider calls.
func (h *SearchHandler) Post(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return
	}
	limit := uint(0)
	if req.Limit > 0 {
		limit = uint(req.Limit)
	}
	h.respond(c, req.Query, req.Embedding, limit)
}

func (h *SearchHandler) respond(c *gin.Context, query string, embedding []float32, limit uint) {
	results, err := h.search.Search(c.Request.Context(), query, embedding)
	if err != nil {
		handleError(c, err)
		return
	}
	if limit > 0 && uint(len(results)) > limit {
		results = results[:limit]
	}
	response.Success(c, gin.H{"results": results})
}
