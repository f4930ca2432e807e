package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// IndicatorInfo describes one catalog entry
type IndicatorInfo struct {
	Kind       indicators.Kind            `json:"kind"`
	Label      string                     `json:"label"`
	Parameters indicators.Parameters      `json:"parameters"`
	Schema     []indicators.ParameterSpec `json:"schema"`
}

func indicatorInfo(kind indicators.Kind) IndicatorInfo {
	params := indicators.DefaultParameters(kind)
	return IndicatorInfo{
		Kind:       kind,
		Label:      indicators.GenerateLabel(kind, params, nil),
		Parameters: params,
		Schema:     indicators.Schema(kind),
	}
}

// handleListIndicators returns the built-in catalog with default parameters
func (s *Server) handleListIndicators(c *gin.Context) {
	kinds := indicators.Kinds()
	out := make([]IndicatorInfo, len(kinds))
	for i, k := range kinds {
		out[i] = indicatorInfo(k)
	}
	c.JSON(http.StatusOK, gin.H{"indicators": out})
}

// handleIndicatorDefaults returns the first-time configuration of a kind.
// Unknown kinds get the generic shape.
func (s *Server) handleIndicatorDefaults(c *gin.Context) {
	kind := indicators.Normalize(c.Param("kind"))
	info := indicatorInfo(kind)
	c.JSON(http.StatusOK, gin.H{
		"indicator": info,
		"known":     indicators.IsKnown(kind),
	})
}

// LabelRequest asks for the label of a kind with partial parameters
type LabelRequest struct {
	Kind       string               `json:"kind" binding:"required"`
	Parameters json.RawMessage      `json:"parameters,omitempty"`
	Variables  []variables.Variable `json:"variables,omitempty"`
}

// handleIndicatorLabel renders the label for the given parameters. Reference
// parameters show the variable's name.
func (s *Server) handleIndicatorLabel(c *gin.Context) {
	var req LabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	kind := indicators.Normalize(req.Kind)
	params, err := indicators.DecodeParameters(kind, req.Parameters)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid indicator parameters", err)
		return
	}

	var problems []string
	for _, e := range indicators.ValidateParameters(params) {
		problems = append(problems, e.Error())
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":     kind,
		"label":    indicators.GenerateLabel(kind, params, variables.NewSnapshot(req.Variables)),
		"known":    indicators.IsKnown(kind),
		"problems": problems,
	})
}

// PreviewRequest evaluates an indicator over a price series
type PreviewRequest struct {
	Indicator indicators.ConfiguredIndicator `json:"indicator"`
	Variables []variables.Variable           `json:"variables,omitempty"`
	Series    indicators.Series              `json:"series"`
}

// handleIndicatorPreview computes the latest indicator values over the
// supplied series, resolving references against the given variables
func (s *Server) handleIndicatorPreview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	result, err := s.indicators.Compute(c.Request.Context(), req.Indicator, variables.NewSnapshot(req.Variables), req.Series)
	if err != nil {
		respondError(c, http.StatusUnprocessableEntity, "Failed to compute indicator", err)
		return
	}

	c.JSON(http.StatusOK, result)
}
