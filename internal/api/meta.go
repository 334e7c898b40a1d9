package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hear-ci-prediction-service/internal/catalog"
	"github.com/hear-ci-prediction-service/internal/health"
	"github.com/hear-ci-prediction-service/internal/modelcard"
)

// handleHealth reports component health; 503 when a required component is
// unhealthy.
func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": health.StateHealthy})
		return
	}
	status := s.deps.Health.Run(c.Request.Context())
	code := http.StatusOK
	if status.Overall == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Predictor.ModelInfo())
}

func (s *Server) handleFeatureCategories(c *gin.Context) {
	if s.deps.Features == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Features.Categories)
}

func (s *Server) handleFeatureNames(c *gin.Context) {
	if s.deps.Features == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.deps.Features.Mapping)
}

func (s *Server) handlePredictionThreshold(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"threshold": s.config.Prediction.Threshold})
}

func (s *Server) handleFeatureDefinitions(c *gin.Context) {
	if s.deps.Catalog == nil {
		c.JSON(http.StatusOK, gin.H{"features": []catalog.FeatureDefinition{}, "section_order": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"features":      s.deps.Catalog.Definitions(),
		"section_order": s.deps.Catalog.SectionOrder(),
	})
}

func (s *Server) handleFeatureLocales(c *gin.Context) {
	lang := catalog.NormalizeLocale(c.Param("locale"))
	if s.deps.Catalog == nil {
		c.JSON(http.StatusOK, gin.H{"language": lang, "labels": gin.H{}, "sections": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"language": lang,
		"labels":   s.deps.Catalog.FeatureLocales(lang),
		"sections": s.deps.Catalog.SectionLocales(lang),
	})
}

func (s *Server) handleFeatureLabels(c *gin.Context) {
	lang := catalog.NormalizeLocale(c.Query("lang"))
	if s.deps.Catalog == nil {
		c.JSON(http.StatusOK, gin.H{"language": lang, "labels": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"language": lang,
		"labels":   s.deps.Catalog.RawLabels(lang),
	})
}

// modelCard serves the active versioned card when a registry is configured
// and generates one otherwise.
func (s *Server) modelCard() *modelcard.Card {
	if s.deps.ModelCards != nil {
		card, err := s.deps.ModelCards.Active()
		if err == nil {
			return card
		}
		s.logger.WithError(err).Warn("Active model card unavailable, generating card")
	}
	return modelcard.Build(s.deps.Predictor.ModelInfo(), s.deps.Predictor.FeatureNames(), s.deps.Now())
}

func (s *Server) handleModelCard(c *gin.Context) {
	c.JSON(http.StatusOK, s.modelCard())
}

func (s *Server) handleModelCardMarkdown(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"markdown": s.modelCard().Markdown()})
}

func (s *Server) handleModelCardVersions(c *gin.Context) {
	if s.deps.ModelCards == nil {
		c.JSON(http.StatusOK, gin.H{"active_version": nil, "versions": []modelcard.VersionSummary{}})
		return
	}
	versions, err := s.deps.ModelCards.List()
	if err != nil {
		s.fail(c, err, errorCase{})
		return
	}
	var active interface{}
	if v, err := s.deps.ModelCards.ActiveVersion(); err == nil {
		active = v
	}
	c.JSON(http.StatusOK, gin.H{"active_version": active, "versions": versions})
}

func (s *Server) handleModelCardVersion(c *gin.Context) {
	if s.deps.ModelCards == nil {
		s.detail(c, http.StatusNotFound, msgCardsDisabled)
		return
	}
	card, err := s.deps.ModelCards.Load(c.Param("version"))
	if err != nil {
		if errors.Is(err, modelcard.ErrVersionNotFound) {
			s.detail(c, http.StatusNotFound, msgCardNotFound)
			return
		}
		if errors.Is(err, modelcard.ErrInvalidVersion) {
			s.detail(c, http.StatusBadRequest, err.Error())
			return
		}
		s.fail(c, err, errorCase{prefix: "Model card unavailable: "})
		return
	}
	c.JSON(http.StatusOK, card)
}
