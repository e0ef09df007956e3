package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/cabinet/pkg/tenantctx"
)

// GetSubscriptionStatus reports the caller cabinet's entitlements, computed
// fresh from the stored billing rows.
func (s *Server) GetSubscriptionStatus(c *gin.Context) {
	cabinetID, ok := tenantctx.CabinetID(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrCabinetRequired)
		return
	}

	ent, err := s.entitlementSvc.Get(c.Request.Context(), cabinetID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}
