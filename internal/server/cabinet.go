package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	cabinetdomain "github.com/smallbiznis/cabinet/internal/cabinet/domain"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
)

func (s *Server) CreateCabinet(c *gin.Context) {
	var req cabinetdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cabinet, err := s.cabinetSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cabinet)
}

// GetCabinetByID lets cabinet staff read their own cabinet only.
func (s *Server) GetCabinetByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if scope, ok := tenantctx.FromContext(c.Request.Context()); ok && !scope.Unscoped() {
		if scope.CabinetID.String() != id {
			AbortWithError(c, ErrNotFound)
			return
		}
	}

	cabinet, err := s.cabinetSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cabinet)
}

func (s *Server) UpdateCabinet(c *gin.Context) {
	var req cabinetdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cabinet, err := s.cabinetSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cabinet)
}
