package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hear-ci-prediction-service/internal/domain"
)

func (s *Server) handleListPredictions(c *gin.Context) {
	if s.deps.Predictions == nil {
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.deps.Predictions.List(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	if items == nil {
		items = []*domain.Prediction{}
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetPrediction(c *gin.Context) {
	if s.deps.Predictions == nil {
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
		return
	}
	id, ok := s.pathID(c, msgPredictionGone)
	if !ok {
		return
	}
	p, err := s.deps.Predictions.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, errorCase{notFound: msgPredictionGone})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleCreateFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
		return
	}
	var in domain.FeedbackCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		s.detail(c, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return
	}
	if in.InputFeatures == nil {
		in.InputFeatures = domain.Features{}
	}

	fb, err := s.deps.Feedback.Create(c.Request.Context(), &in)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
		return
	}
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.detail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	items, err := s.deps.Feedback.List(ctx, q.Limit, q.Offset)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	total, err := s.deps.Feedback.Count(ctx)
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	if items == nil {
		items = []*domain.Feedback{}
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleGetFeedback(c *gin.Context) {
	if s.deps.Feedback == nil {
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
		return
	}
	id, ok := s.pathID(c, msgFeedbackNotFound)
	if !ok {
		return
	}
	fb, err := s.deps.Feedback.GetByID(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err, errorCase{notFound: msgFeedbackNotFound})
		return
	}
	c.JSON(http.StatusOK, fb)
}
