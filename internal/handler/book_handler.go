package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kvander/bookdex/internal/pkg/errcode"
	"github.com/kvander/bookdex/internal/pkg/response"
	"github.com/kvander/bookdex/internal/service"
)

type BookHandler struct {
	ingest         *service.IngestService
	maxUploadBytes int64
}

func NewBookHandler(ingest *service.IngestService, maxUploadBytes int64) *BookHandler {
	return &BookHandler{ingest: ingest, maxUploadBytes: maxUploadBytes}
}

func (h *BookHandler) Create(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		response.Error(c, errcode.ErrInvalidFile, "file exceeds upload limit of "+formatUploadLimit(h.maxUploadBytes))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()

	result, err := h.ingest.Ingest(c.Request.Context(), file.Filename, opened, file.Size)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *BookHandler) Get(c *gin.Context) {
	book, err := h.ingest.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, book)
}

func (h *BookHandler) List(c *gin.Context) {
	limit := parseUintParam(c.Query("limit"), 50)
	offset := parseUintParam(c.Query("offset"), 0)
	if limit > 200 {
		limit = 200
	}
	books, err := h.ingest.ListBooks(c.Request.Context(), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, books)
}

func (h *BookHandler) Progress(c *gin.Context) {
	progress, err := h.ingest.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, progress)
}

func parseUintParam(raw string, fallback uint) uint {
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return uint(v)
}
