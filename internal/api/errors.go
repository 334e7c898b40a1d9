package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/middleware"
)

// Client facing messages
const (
	msgModelNotLoaded   = "Model not loaded"
	msgShapNotLoaded    = "Model not loaded. SHAP explanations require a loaded model."
	msgDatabase         = "Database not configured"
	msgPatientNotFound  = "Patient not found"
	msgFeedbackNotFound = "Feedback not found"
	msgPredictionGone   = "Prediction not found"
	msgTimeout          = "Request timed out"
	msgCardsDisabled    = "Model card versions are not configured"
	msgCardNotFound     = "Model card version not found"
)

// detail aborts the request with {"detail": msg}.
func (s *Server) detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// errorCase describes how one request maps domain errors to responses.
type errorCase struct {
	// notFound is the detail for domain.ErrNotFound
	notFound string
	// notLoaded overrides the detail for domain.ErrModelNotLoaded
	notLoaded string
	// prefix is prepended to unexpected errors, e.g. "Prediction failed: "
	prefix string
}

// fail maps err to a status and writes {"detail": ...}. Client errors carry
// their own message; unexpected errors are logged with the request ID.
func (s *Server) fail(c *gin.Context, err error, ec errorCase) {
	var verr *domain.ValidationError
	var mismatch *domain.FeatureMismatchError

	switch {
	case errors.As(err, &verr):
		s.detail(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, domain.ErrNoInputFeatures):
		s.detail(c, http.StatusBadRequest, "Patient has no input features")
	case errors.Is(err, domain.ErrMethodUnavailable):
		s.detail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		msg := ec.notFound
		if msg == "" {
			msg = "Not found"
		}
		s.detail(c, http.StatusNotFound, msg)
	case errors.Is(err, domain.ErrModelNotLoaded):
		msg := ec.notLoaded
		if msg == "" {
			msg = msgModelNotLoaded
		}
		s.detail(c, http.StatusServiceUnavailable, msg)
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.detail(c, http.StatusServiceUnavailable, msgDatabase)
	case errors.Is(err, context.DeadlineExceeded):
		s.detail(c, http.StatusGatewayTimeout, msgTimeout)
	default:
		fields := logrus.Fields{
			"request_id": c.GetString(middleware.RequestIDKey),
			"path":       c.FullPath(),
		}
		if errors.As(err, &mismatch) {
			fields["expected_features"] = mismatch.Expected
			fields["got_features"] = mismatch.Got
		}
		s.logger.WithError(err).WithFields(fields).Error("Request failed")
		s.detail(c, http.StatusInternalServerError, ec.prefix+err.Error())
	}
}
