package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deploy-controller/internal/models"
)

type FrameworkLister interface {
	ByCategory() map[models.FrameworkCategory][]models.FrameworkDescriptor
}

type FrameworkController struct {
	catalog FrameworkLister
}

func NewFrameworkController(catalog FrameworkLister) *FrameworkController {
	return &FrameworkController{catalog: catalog}
}

func (f *FrameworkController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/frameworks", f.List)
}

// List: 카테고리별 지원 프레임워크와 기본 설정
func (f *FrameworkController) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"frameworks": f.catalog.ByCategory()})
}
