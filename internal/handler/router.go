package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Books  *BookHandler
	Search *SearchHandler
	Files  *FileHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/books", deps.Books.Create)
	api.GET("/books", deps.Books.List)
	api.GET("/books/:id", deps.Books.Get)
	api.GET("/books/:id/progress", deps.Books.Progress)

	api.GET("/search", deps.Search.Get)
	api.POST("/search", deps.Search.Post)

	api.GET("/files/*key", deps.Files.Get)
}
