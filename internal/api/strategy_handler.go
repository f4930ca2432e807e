package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/strategy"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

const (
	// MaxStrategyUploadSize is the maximum allowed size of strategy text (10MB)
	MaxStrategyUploadSize = 10 * 1024 * 1024
)

// StrategyRequest carries the document being edited. Data may hold YAML or
// JSON text instead of the structured Strategy.
type StrategyRequest struct {
	Strategy *strategy.Strategy `json:"strategy,omitempty"`
	Data     string             `json:"data,omitempty"`
}

// document decodes the request's strategy and upgrades older schemas
func (r StrategyRequest) document() (*strategy.Strategy, error) {
	doc := r.Strategy
	if doc == nil {
		if r.Data == "" {
			return nil, errors.New("strategy or data is required")
		}
		if len(r.Data) > MaxStrategyUploadSize {
			return nil, fmt.Errorf("strategy data exceeds %d bytes", MaxStrategyUploadSize)
		}
		decoded, err := strategy.Decode([]byte(r.Data))
		if err != nil {
			return nil, err
		}
		doc = decoded
	}
	if doc.Metadata.SchemaVersion != "" && doc.Metadata.SchemaVersion != strategy.SchemaVersion {
		if err := strategy.Migrate(doc); err != nil {
			return nil, err
		}
	}
	lookup := doc.Lookup()
	doc.SyncReferenceNames(lookup)
	doc.RefreshLabels(lookup)
	return doc, nil
}

// bindStrategy binds req and decodes its document, answering 400 on failure
func bindStrategy[T interface{ document() (*strategy.Strategy, error) }](c *gin.Context, req T) (*strategy.Strategy, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", err)
		return nil, false
	}
	doc, err := req.document()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid strategy", err)
		return nil, false
	}
	return doc, true
}

// variableErrorStatus maps registry errors to HTTP statuses
func variableErrorStatus(err error) int {
	switch {
	case errors.Is(err, variables.ErrVariableNotFound):
		return http.StatusNotFound
	case errors.Is(err, variables.ErrCapacityExceeded), errors.Is(err, variables.ErrDuplicateName):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// handleDefaultStrategy returns the starter template
func (s *Server) handleDefaultStrategy(c *gin.Context) {
	name := c.DefaultQuery("name", "New Strategy")
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err == nil && req.Name != "" {
		name = req.Name
	}
	c.JSON(http.StatusOK, strategy.NewDefaultStrategy(name))
}

// handleValidateStrategy reports every validation error and every dangling
// reference without rejecting the request
func (s *Server) handleValidateStrategy(c *gin.Context) {
	var req StrategyRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}

	response := gin.H{
		"valid":          true,
		"name":           doc.Metadata.Name,
		"schema_version": doc.Metadata.SchemaVersion,
		"references":     doc.References(),
		"warnings":       doc.Warnings(),
	}

	if err := doc.ValidateWithLimit(s.maxVariables); err != nil {
		response["valid"] = false
		var verrs strategy.ValidationErrors
		if errors.As(err, &verrs) {
			response["errors"] = verrs
		} else {
			response["errors"] = []strategy.ValidationError{{Field: "strategy", Message: err.Error()}}
		}
	}

	c.JSON(http.StatusOK, response)
}

// ResolveRequest resolves a strategy, optionally after substituting an
// assignment
type ResolveRequest struct {
	StrategyRequest
	Assignment map[string]float64 `json:"assignment,omitempty"`
}

// handleResolveStrategy returns the fully numeric strategy. Dangling
// references resolve to 0 and are listed as warnings.
func (s *Server) handleResolveStrategy(c *gin.Context) {
	var req ResolveRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}

	if len(req.Assignment) > 0 {
		sub, err := doc.Substitute(req.Assignment)
		if err != nil {
			respondError(c, variableErrorStatus(err), "Failed to substitute assignment", err)
			return
		}
		doc = sub
	}

	resolved, warnings := doc.ResolveAll(nil)
	c.JSON(http.StatusOK, gin.H{
		"strategy": resolved.Strategy,
		"values":   resolved.Values,
		"warnings": warnings,
	})
}

// ImportRequest defines the request for importing a strategy
type ImportRequest struct {
	Data        string   `json:"data" binding:"required"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Lenient     bool     `json:"lenient,omitempty"`
}

// handleImportStrategy parses, migrates and validates strategy text
func (s *Server) handleImportStrategy(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if len(req.Data) > MaxStrategyUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error":    "Strategy data too large",
			"max_size": MaxStrategyUploadSize,
		})
		return
	}

	opts := strategy.DefaultImportOptions()
	opts.ValidateStrict = !req.Lenient
	opts.MaxVariables = s.maxVariables
	if req.Name != "" || req.Description != "" || len(req.Tags) > 0 {
		opts.OverrideMetadata = &strategy.Metadata{
			Name:        req.Name,
			Description: req.Description,
			Tags:        req.Tags,
		}
	}

	imported, err := strategy.Import([]byte(req.Data), opts)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to import strategy")
		respondError(c, http.StatusBadRequest, "Failed to import strategy", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"strategy": imported,
		"warnings": imported.Warnings(),
	})
}

// ExportRequest defines the request for exporting a strategy
type ExportRequest struct {
	StrategyRequest
	Format          string `json:"format,omitempty"`
	IncludeComments bool   `json:"include_comments,omitempty"`
}

// handleExportStrategy serializes the strategy as YAML (default) or JSON
func (s *Server) handleExportStrategy(c *gin.Context) {
	var req ExportRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}

	opts := strategy.DefaultExportOptions()
	opts.AddComments = req.IncludeComments
	contentType := "text/yaml"
	if strings.EqualFold(req.Format, "json") {
		opts.Format = strategy.FormatJSON
		contentType = "application/json"
	}

	data, err := strategy.Export(doc, opts)
	if err != nil {
		log.Err(err).Msg("Failed to export strategy")
		respondError(c, http.StatusInternalServerError, "Failed to export strategy", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=strategy_%s.%s", doc.Metadata.ID, opts.Format))
	c.Data(http.StatusOK, contentType, data)
}

// handleAddVariable appends a variable with a generated id and name
func (s *Server) handleAddVariable(c *gin.Context) {
	var req StrategyRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}

	registry, err := doc.Registry(s.maxVariables)
	if err != nil {
		respondError(c, variableErrorStatus(err), "Invalid strategy variables", err)
		return
	}
	added, err := registry.Add()
	if err != nil {
		respondError(c, variableErrorStatus(err), "Failed to add variable", err)
		return
	}
	doc.SetVariables(registry.List())

	c.JSON(http.StatusCreated, gin.H{
		"strategy": doc,
		"variable": added,
	})
}

// UpdateVariableRequest patches one variable of the carried strategy
type UpdateVariableRequest struct {
	StrategyRequest
	Patch variables.Patch `json:"patch"`
}

// handleUpdateVariable applies a patch. Renames propagate to references and
// indicator labels.
func (s *Server) handleUpdateVariable(c *gin.Context) {
	var req UpdateVariableRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}

	registry, err := doc.Registry(s.maxVariables)
	if err != nil {
		respondError(c, variableErrorStatus(err), "Invalid strategy variables", err)
		return
	}
	updated, err := registry.Update(c.Param("id"), req.Patch)
	if err != nil {
		respondError(c, variableErrorStatus(err), "Failed to update variable", err)
		return
	}
	doc.SetVariables(registry.List())

	c.JSON(http.StatusOK, gin.H{
		"strategy": doc,
		"variable": updated,
		"warnings": doc.Warnings(),
	})
}

// handleRemoveVariable deletes a variable. References to it stay in place
// and are reported as warnings.
func (s *Server) handleRemoveVariable(c *gin.Context) {
	var req StrategyRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}

	registry, err := doc.Registry(s.maxVariables)
	if err != nil {
		respondError(c, variableErrorStatus(err), "Invalid strategy variables", err)
		return
	}
	if err := registry.Remove(c.Param("id")); err != nil {
		respondError(c, variableErrorStatus(err), "Failed to remove variable", err)
		return
	}
	doc.SetVariables(registry.List())

	c.JSON(http.StatusOK, gin.H{
		"strategy": doc,
		"warnings": doc.Warnings(),
	})
}

// parsePage reads limit and offset query parameters
func parsePage(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		respondError(c, http.StatusBadRequest, "Invalid limit parameter", errors.New("limit must be between 1 and 100"))
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		respondError(c, http.StatusBadRequest, "Invalid offset parameter", errors.New("offset must be >= 0"))
		return 0, 0, false
	}
	return limit, offset, true
}

// handleListStrategies returns a page of saved strategies
func (s *Server) handleListStrategies(c *gin.Context) {
	limit, offset, ok := parsePage(c)
	if !ok {
		return
	}
	list, err := s.strategies.List(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list strategies")
		respondError(c, http.StatusInternalServerError, "Failed to list strategies", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategies": list,
		"limit":      limit,
		"offset":     offset,
	})
}

// handleSaveStrategy validates and stores a strategy
func (s *Server) handleSaveStrategy(c *gin.Context) {
	var req StrategyRequest
	doc, ok := bindStrategy(c, &req)
	if !ok {
		return
	}
	if err := doc.ValidateWithLimit(s.maxVariables); err != nil {
		respondError(c, http.StatusBadRequest, "Strategy validation failed", err)
		return
	}
	if err := s.strategies.Save(c.Request.Context(), doc); err != nil {
		log.Error().Err(err).Msg("Failed to save strategy")
		respondError(c, http.StatusInternalServerError, "Failed to save strategy", err)
		return
	}

	log.Info().
		Str("strategy_id", doc.Metadata.ID).
		Str("strategy_name", doc.Metadata.Name).
		Str("user_id", c.GetString("user_id")).
		Msg("Strategy saved")

	c.JSON(http.StatusCreated, doc)
}

// handleGetStrategy returns a saved strategy
func (s *Server) handleGetStrategy(c *gin.Context) {
	doc, err := s.strategies.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, strategy.ErrStrategyNotFound) {
			respondError(c, http.StatusNotFound, "Strategy not found", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to get strategy", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// handleStrategyHistory lists saved revisions of a strategy
func (s *Server) handleStrategyHistory(c *gin.Context) {
	limit, _, ok := parsePage(c)
	if !ok {
		return
	}
	revisions, err := s.strategies.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, strategy.ErrStrategyNotFound) {
			respondError(c, http.StatusNotFound, "Strategy not found", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to get strategy history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"strategy_id": c.Param("id"),
		"revisions":   revisions,
		"count":       len(revisions),
	})
}

// handleDeleteStrategy removes a saved strategy
func (s *Server) handleDeleteStrategy(c *gin.Context) {
	if err := s.strategies.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, strategy.ErrStrategyNotFound) {
			respondError(c, http.StatusNotFound, "Strategy not found", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to delete strategy", err)
		return
	}
	c.Status(http.StatusNoContent)
}
