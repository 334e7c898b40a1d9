package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/service"
)

type pageQuery struct {
	Limit  int `form:"limit,default=100" binding:"min=1,max=1000"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

type searchQuery struct {
	Q     string `form:"q"`
	Limit int    `form:"limit,default=100" binding:"min=1,max=1000"`
}

// patientRepo returns the repository or answers 503 in lite mode.
func (s *Server) patientRepo(c *gin.Context) (domain.PatientRepository, bool) {
	if s.deps.Patients == nil {
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
		return nil, false
	}
	return s.deps.Patients, true
}

// pathID parses the :id parameter. Malformed IDs cannot exist, so they get
// the route's not-found message.
func (s *Server) pathID(c *gin.Context, notFound string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.detail(c, http.StatusNotFound, notFound)
		return uuid.Nil, false
	}
	return id, true
}

// loadPatient resolves :id to a stored patient.
func (s *Server) loadPatient(c *gin.Context) (*domain.Patient, bool) {
	repo, ok := s.patientRepo(c)
	if !ok {
		return nil, false
	}
	id, ok := s.pathID(c, msgPatientNotFound)
	if !ok {
		return nil, false
	}
	p, err := repo.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, errorCase{notFound: msgPatientNotFound})
		return nil, false
	}
	return p, true
}

func (s *Server) handleListPatients(c *gin.Context) {
	repo, ok := s.patientRepo(c)
	if !ok {
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	patients, err := repo.List(ctx, q.Limit, q.Offset)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	total, err := repo.Count(ctx)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, patients)
}

func (s *Server) handleSearchPatients(c *gin.Context) {
	repo, ok := s.patientRepo(c)
	if !ok {
		return
	}
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}

	patients, err := repo.SearchByName(c.Request.Context(), q.Q, q.Limit)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	if patients == nil {
		patients = []*domain.Patient{}
	}
	c.JSON(http.StatusOK, patients)
}

func (s *Server) handleCreatePatient(c *gin.Context) {
	repo, ok := s.patientRepo(c)
	if !ok {
		return
	}
	var in domain.PatientCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		s.detail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	p, err := repo.Create(c.Request.Context(), &in)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetPatient(c *gin.Context) {
	p, ok := s.loadPatient(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleUpdatePatient(c *gin.Context) {
	repo, ok := s.patientRepo(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c, msgPatientNotFound)
	if !ok {
		return
	}
	var in domain.PatientUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		s.detail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}

	p, err := repo.Update(c.Request.Context(), id, &in)
	if err != nil {
		s.fail(c, err, errorCase{notFound: msgPatientNotFound})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeletePatient(c *gin.Context) {
	repo, ok := s.patientRepo(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c, msgPatientNotFound)
	if !ok {
		return
	}
	if err := repo.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err, errorCase{notFound: msgPatientNotFound})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePredictPatient(c *gin.Context) {
	p, ok := s.loadPatient(c)
	if !ok {
		return
	}
	if len(p.InputFeatures) == 0 {
		s.fail(c, domain.ErrNoInputFeatures, errorCase{})
		return
	}

	prediction, err := s.deps.Predictor.Predict(c.Request.Context(), p.InputFeatures)
	if err != nil {
		s.fail(c, err, errorCase{prefix: "Prediction failed: "})
		return
	}
	c.JSON(http.StatusOK, service.PredictResponse{
		Prediction:  prediction,
		Explanation: map[string]interface{}{},
	})
}

// handleExplainPatient explains the stored record as submitted; the dataset
// adapter resolves German column names and aliases alike.
func (s *Server) handleExplainPatient(c *gin.Context) {
	var q explainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}
	p, ok := s.loadPatient(c)
	if !ok {
		return
	}
	if len(p.InputFeatures) == 0 {
		s.fail(c, domain.ErrNoInputFeatures, errorCase{})
		return
	}

	resp, err := s.deps.Predictor.Explain(c.Request.Context(), p.InputFeatures, q.Method)
	if err != nil {
		s.fail(c, err, errorCase{notLoaded: msgShapNotLoaded, prefix: "SHAP explanation failed: "})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleValidatePatient(c *gin.Context) {
	p, ok := s.loadPatient(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.Predictor.ValidateFeatures(p.InputFeatures))
}
