package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/backtest"
	"github.com/ajitpratap0/stratforge/internal/optimization"
	"github.com/ajitpratap0/stratforge/internal/report"
	"github.com/ajitpratap0/stratforge/internal/strategy"
)

// SpaceRequest describes a search space either explicitly or through the
// enabled, ranged variables of a strategy
type SpaceRequest struct {
	StrategyRequest
	Space           *optimization.Config `json:"space,omitempty"`
	MaxCombinations int                  `json:"max_combinations,omitempty"`
	Preview         int                  `json:"preview,omitempty"`
}

// spaceConfig resolves the request into a validated config. doc is nil when
// the space was given explicitly without a strategy. An explicit space sent
// with a strategy may only name that strategy's optimizable variables.
func (r SpaceRequest) spaceConfig() (optimization.Config, *strategy.Strategy, error) {
	var doc *strategy.Strategy
	if r.Strategy != nil || r.Data != "" {
		d, err := r.document()
		if err != nil {
			return optimization.Config{}, nil, err
		}
		doc = d
	}

	var cfg optimization.Config
	switch {
	case r.Space != nil:
		cfg = *r.Space
		if r.MaxCombinations > 0 {
			cfg = cfg.WithCap(r.MaxCombinations)
		}
	case doc != nil:
		cfg = optimization.ConfigFromRegistry(doc.Lookup(), r.MaxCombinations)
	default:
		return optimization.Config{}, nil, errors.New("space or strategy is required")
	}

	if err := cfg.Validate(); err != nil {
		return optimization.Config{}, nil, err
	}
	if doc != nil {
		if err := cfg.CheckEligible(doc.Lookup()); err != nil {
			return optimization.Config{}, nil, err
		}
	}
	return cfg, doc, nil
}

// handleListObjectives returns the available ranking objectives
func (s *Server) handleListObjectives(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"objectives": optimization.Objectives(),
		"default":    optimization.DefaultObjective,
	})
}

// handleSearchSpace counts the combinations and previews the first ones
// without enumerating the rest
func (s *Server) handleSearchSpace(c *gin.Context) {
	var req SpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	cfg, doc, err := req.spaceConfig()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid search space", err)
		return
	}

	limit := req.Preview
	if limit <= 0 || limit > s.previewLimit {
		limit = s.previewLimit
	}

	e := optimization.NewEnumerator(cfg)
	preview := make([]optimization.Assignment, 0, min(uint64(limit), e.Len()))
	for len(preview) < limit {
		a, ok := e.Next()
		if !ok {
			break
		}
		preview = append(preview, a)
	}

	response := gin.H{
		"variables":          cfg.Variables,
		"total_combinations": e.Total(),
		"combinations":       e.Len(),
		"truncated":          e.Truncated(),
		"preview":            preview,
	}
	if warning := e.Warning(); warning != nil {
		response["warning"] = warning.Error()
	}
	if doc != nil {
		response["warnings"] = doc.Warnings()
	}

	c.JSON(http.StatusOK, response)
}

// RankRequest ranks externally produced results
type RankRequest struct {
	Results   []optimization.Result        `json:"results" binding:"required"`
	Objective string                       `json:"objective,omitempty"`
	MinTrades *int                         `json:"min_trades,omitempty"`
	Policy    optimization.MinTradesPolicy `json:"policy,omitempty"`
}

// handleRank scores and orders results by the chosen objective
func (s *Server) handleRank(c *gin.Context) {
	var req RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	scorer, err := optimization.ScorerByName(req.Objective)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Unknown objective", err)
		return
	}
	if !req.Policy.Valid() {
		respondError(c, http.StatusBadRequest, "Invalid min trades policy", errors.New(string(req.Policy)))
		return
	}

	opts := optimization.DefaultRankOptions()
	opts.Scorer = scorer
	if req.MinTrades != nil {
		opts.MinTrades = *req.MinTrades
	}
	if req.Policy != "" {
		opts.Policy = req.Policy
	}

	ranked := optimization.Rank(req.Results, opts)
	c.JSON(http.StatusOK, gin.H{
		"results": ranked,
		"best":    optimization.Best(ranked),
	})
}

// CreateRunRequest starts an asynchronous grid search
type CreateRunRequest struct {
	StrategyRequest
	Name            string                       `json:"name" binding:"required"`
	Space           *optimization.Config         `json:"space,omitempty"`
	MaxCombinations int                          `json:"max_combinations,omitempty"`
	Backtest        optimization.RunConfig       `json:"backtest"`
	Objective       string                       `json:"objective,omitempty"`
	MinTrades       *int                         `json:"min_trades,omitempty"`
	Policy          optimization.MinTradesPolicy `json:"policy,omitempty"`
}

func (s *Server) requireRuns(c *gin.Context) bool {
	if s.runs == nil {
		respondError(c, http.StatusServiceUnavailable, "Optimization runs are not configured", nil)
		return false
	}
	return true
}

func parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid run ID format",
			"details": "Expected UUID format",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) runError(c *gin.Context, id uuid.UUID, action string, err error) {
	switch {
	case errors.Is(err, backtest.ErrRunNotFound):
		respondError(c, http.StatusNotFound, "Optimization run not found", err)
	case errors.Is(err, backtest.ErrRunFinished):
		respondError(c, http.StatusConflict, "Optimization run already finished", err)
	default:
		log.Error().Err(err).Str("run_id", id.String()).Msgf("Failed to %s optimization run", action)
		respondError(c, http.StatusInternalServerError, "Failed to "+action+" optimization run", err)
	}
}

// handleCreateRun stores a run and starts it in the background
func (s *Server) handleCreateRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}

	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	doc, err := req.document()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid strategy", err)
		return
	}
	if err := doc.ValidateWithLimit(s.maxVariables); err != nil {
		respondError(c, http.StatusBadRequest, "Strategy validation failed", err)
		return
	}

	space := SpaceRequest{
		StrategyRequest: StrategyRequest{Strategy: doc},
		Space:           req.Space,
		MaxCombinations: req.MaxCombinations,
	}
	cfg, _, err := space.spaceConfig()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid search space", err)
		return
	}

	ranking := optimization.DefaultRankOptions()
	if req.MinTrades != nil {
		ranking.MinTrades = *req.MinTrades
	}
	if req.Policy != "" {
		ranking.Policy = req.Policy
	}

	run := &backtest.Run{
		Name:      req.Name,
		Strategy:  doc,
		Space:     cfg,
		Backtest:  req.Backtest,
		Objective: req.Objective,
		Ranking:   ranking,
		CreatedBy: c.GetString("user_id"),
	}

	created, err := s.runs.Submit(c.Request.Context(), run)
	if err != nil {
		if errors.Is(err, backtest.ErrInvalidRun) {
			respondError(c, http.StatusBadRequest, "Invalid optimization run", err)
			return
		}
		log.Error().Err(err).Msg("Failed to create optimization run")
		respondError(c, http.StatusInternalServerError, "Failed to create optimization run", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":                 created.ID.String(),
		"status":             created.Status,
		"total_combinations": created.TotalCombinations,
		"truncated":          optimization.NewEnumerator(cfg).Truncated(),
		"message":            "Optimization run created. Use GET /api/v1/optimization/runs/:id to check status or /api/v1/optimization/runs/:id/stream to follow it.",
	})
}

// handleListRuns returns a page of runs, optionally for one strategy
func (s *Server) handleListRuns(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}

	runs, total, err := s.runs.List(c.Request.Context(), c.Query("strategy_id"), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list optimization runs")
		respondError(c, http.StatusInternalServerError, "Failed to list optimization runs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetRun returns a run with its ranked results
func (s *Server) handleGetRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := s.runs.Get(c.Request.Context(), id)
	if err != nil {
		s.runError(c, id, "get", err)
		return
	}
	response := gin.H{
		"run":    run,
		"active": s.runs.IsActive(id),
	}
	if p, ok := s.runs.Progress(id); ok {
		response["progress"] = p
	}
	c.JSON(http.StatusOK, response)
}

// handleRunWorkbook downloads a run's ranking as an Excel workbook
func (s *Server) handleRunWorkbook(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	run, err := s.runs.Get(c.Request.Context(), id)
	if err != nil {
		s.runError(c, id, "export", err)
		return
	}

	rep := report.Report{
		Title:             run.Name,
		Objective:         run.Objective,
		Variables:         run.Space.Variables,
		Results:           run.Results,
		TotalCombinations: run.TotalCombinations,
		Evaluated:         run.Evaluated,
		Failed:            run.Failed,
		Truncated:         run.Truncated,
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.xlsx"`, id))
	if err := report.WriteWorkbookTo(c.Writer, rep); err != nil {
		log.Error().Err(err).Str("run_id", id.String()).Msg("Failed to write run workbook")
		c.Status(http.StatusInternalServerError)
	}
}

// handleCancelRun stops a pending or running run
func (s *Server) handleCancelRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	if err := s.runs.Cancel(c.Request.Context(), id); err != nil {
		s.runError(c, id, "cancel", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":      id.String(),
		"message": "Cancellation requested",
	})
}

// handleDeleteRun cancels a run if needed and removes it
func (s *Server) handleDeleteRun(c *gin.Context) {
	if !s.requireRuns(c) {
		return
	}
	id, ok := parseRunID(c)
	if !ok {
		return
	}

	if err := s.runs.Delete(c.Request.Context(), id); err != nil {
		s.runError(c, id, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}
