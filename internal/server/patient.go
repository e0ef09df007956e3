package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	patientdomain "github.com/smallbiznis/cabinet/internal/patient/domain"
)

func (s *Server) ListPatients(c *gin.Context) {
	var req patientdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.patientSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) CreatePatient(c *gin.Context) {
	var req patientdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	patient, err := s.patientSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

func (s *Server) GetPatientByID(c *gin.Context) {
	patient, err := s.patientSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (s *Server) DeletePatient(c *gin.Context) {
	if err := s.patientSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
