package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/admin"
	"github.com/hear-ci-prediction-service/internal/middleware"
)

type persistQuery struct {
	Persist bool `form:"persist"`
}

type explainQuery struct {
	Method string `form:"method"`
}

// bindFeatures reads a JSON object body. An empty body is an empty record.
func (s *Server) bindFeatures(c *gin.Context) (map[string]interface{}, bool) {
	raw := map[string]interface{}{}
	if c.Request.ContentLength == 0 {
		return raw, true
	}
	if err := c.ShouldBindJSON(&raw); err != nil && !errors.Is(err, io.EOF) {
		s.detail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return nil, false
	}
	return raw, true
}

func (s *Server) handlePredict(c *gin.Context) {
	var q persistQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}
	raw, ok := s.bindFeatures(c)
	if !ok {
		return
	}

	resp, err := s.deps.Predictor.PredictAndPersist(c.Request.Context(), raw, q.Persist)
	if err != nil {
		s.fail(c, err, errorCase{prefix: "Prediction failed: "})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// handleUpload runs a prediction for every non-empty row of an uploaded CSV.
func (s *Server) handleUpload(c *gin.Context) {
	var q persistQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !s.deps.Predictor.ModelLoaded() {
		s.detail(c, http.StatusServiceUnavailable, msgModelNotLoaded)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		s.detail(c, http.StatusBadRequest, "Failed to read CSV: "+err.Error())
		return
	}
	f, err := header.Open()
	if err != nil {
		s.detail(c, http.StatusBadRequest, "Failed to read CSV: "+err.Error())
		return
	}
	defer f.Close()

	table, err := admin.ReadTable(f)
	if err != nil {
		s.detail(c, http.StatusBadRequest, "Failed to read CSV: "+err.Error())
		return
	}
	rows, index := admin.UploadRecords(table)

	results, err := s.deps.Predictor.PredictBatch(c.Request.Context(), rows, index, q.Persist)
	if err != nil {
		s.fail(c, err, errorCase{prefix: "Batch prediction failed: "})
		return
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(middleware.RequestIDKey),
		"file":       header.Filename,
		"rows":       len(results),
		"persist":    q.Persist,
	}).Info("Batch prediction completed")

	c.JSON(http.StatusOK, gin.H{"count": len(results), "results": results})
}

func (s *Server) handleExplain(c *gin.Context) {
	var q explainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}
	raw, ok := s.bindFeatures(c)
	if !ok {
		return
	}

	resp, err := s.deps.Predictor.Explain(c.Request.Context(), raw, q.Method)
	if err != nil {
		s.fail(c, err, errorCase{notLoaded: msgShapNotLoaded, prefix: "SHAP explanation failed: "})
		return
	}
	c.JSON(http.StatusOK, resp)
}
