package strategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// ValidationError contains details about validation failures
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

// ErrInvalidSchema is returned when the schema version is not supported
var ErrInvalidSchema = errors.New("invalid or unsupported schema version")

// ErrMissingRequiredField is returned when a required field is missing
var ErrMissingRequiredField = errors.New("missing required field")

// SupportedSchemaVersions lists all supported schema versions
var SupportedSchemaVersions = []string{"1.0", "1.1"}

// Validate checks the strategy against the default variable limit.
// Returns nil if valid, or ValidationErrors with all issues found.
// References to missing variables are not errors; see Warnings.
func (s *Strategy) Validate() error {
	return s.ValidateWithLimit(variables.DefaultMaxVariables)
}

// ValidateWithLimit performs comprehensive validation with a variable cap
func (s *Strategy) ValidateWithLimit(maxVariables int) error {
	var errs ValidationErrors

	errs = append(errs, s.validateMetadata()...)
	errs = append(errs, s.validateVariables(maxVariables)...)
	errs = append(errs, validateRuleGroup("entry_rules", &s.EntryRules, true)...)
	errs = append(errs, validateRuleGroup("exit_rules", &s.ExitRules, false)...)
	errs = append(errs, s.validateRisk()...)

	if len(errs) > 0 {
		for _, e := range errs {
			metrics.RecordStrategyValidationFailure(e.Message)
		}
		return errs
	}
	return nil
}

// Warnings reports non-fatal problems: references to variables the strategy
// does not define. They resolve to 0 until rebound or removed.
func (s *Strategy) Warnings() []variables.Warning {
	var warnings []variables.Warning
	for _, site := range s.DanglingReferences(nil) {
		err := &variables.DanglingReferenceError{VariableID: site.VariableID, VariableName: site.VariableName}
		warnings = append(warnings, variables.Warning{
			Path:         site.Path,
			VariableID:   site.VariableID,
			VariableName: site.VariableName,
			Message:      err.Error(),
		})
	}
	return warnings
}

func (s *Strategy) validateMetadata() ValidationErrors {
	var errs ValidationErrors

	if s.Metadata.SchemaVersion == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: "schema version is required",
		})
	} else if !isVersionSupported(s.Metadata.SchemaVersion) {
		errs = append(errs, ValidationError{
			Field:   "metadata.schema_version",
			Message: fmt.Sprintf("unsupported schema version %s, supported: %v", s.Metadata.SchemaVersion, SupportedSchemaVersions),
		})
	}

	if s.Metadata.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "strategy name is required",
		})
	} else if len(s.Metadata.Name) > 100 {
		errs = append(errs, ValidationError{
			Field:   "metadata.name",
			Message: "strategy name must be 100 characters or less",
		})
	}

	if len(s.Metadata.Description) > 2000 {
		errs = append(errs, ValidationError{
			Field:   "metadata.description",
			Message: "description must be 2000 characters or less",
		})
	}

	if len(s.Metadata.Tags) > 20 {
		errs = append(errs, ValidationError{
			Field:   "metadata.tags",
			Message: "maximum 20 tags allowed",
		})
	}
	for i, tag := range s.Metadata.Tags {
		if len(tag) > 50 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("metadata.tags[%d]", i),
				Message: "tag must be 50 characters or less",
			})
		}
	}

	return errs
}

func (s *Strategy) validateVariables(maxVariables int) ValidationErrors {
	var errs ValidationErrors

	if maxVariables <= 0 {
		maxVariables = variables.DefaultMaxVariables
	}
	if len(s.Variables) > maxVariables {
		errs = append(errs, ValidationError{
			Field:   "variables",
			Message: fmt.Sprintf("maximum %d variables allowed, got %d", maxVariables, len(s.Variables)),
		})
	}

	ids := make(map[string]int)
	names := make(map[string]int)
	for i, v := range s.Variables {
		field := fmt.Sprintf("variables[%d]", i)
		if err := v.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
		if prev, dup := ids[v.ID]; dup && v.ID != "" {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("%s %q also used by variables[%d]", variables.ErrDuplicateID, v.ID, prev),
			})
		} else {
			ids[v.ID] = i
		}
		key := strings.ToLower(v.Name)
		if prev, dup := names[key]; dup && key != "" {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("%s %q also used by variables[%d]", variables.ErrDuplicateName, v.Name, prev),
			})
		} else {
			names[key] = i
		}
	}

	return errs
}

func validateRuleGroup(prefix string, g *RuleGroup, requireConditions bool) ValidationErrors {
	var errs ValidationErrors

	if g.Logic != LogicAnd && g.Logic != LogicOr {
		errs = append(errs, ValidationError{
			Field:   prefix + ".logic",
			Message: fmt.Sprintf("logic must be %q or %q, got %q", LogicAnd, LogicOr, g.Logic),
		})
	}
	if requireConditions && len(g.Conditions) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".conditions",
			Message: "at least one condition is required",
		})
	}

	for i := range g.Conditions {
		c := &g.Conditions[i]
		field := fmt.Sprintf("%s.conditions[%d]", prefix, i)

		errs = append(errs, validateIndicator(field+".left", &c.Left)...)

		if !c.Operator.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".operator",
				Message: fmt.Sprintf("invalid operator %q", c.Operator),
			})
		}
		if !c.Action.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".action",
				Message: fmt.Sprintf("invalid action %q", c.Action),
			})
		}
		if err := c.Right.validate(); err != nil {
			errs = append(errs, ValidationError{Field: field + ".right", Message: err.Error()})
		} else if c.Right.Indicator != nil {
			errs = append(errs, validateIndicator(field+".right.indicator", c.Right.Indicator)...)
		}
	}

	return errs
}

func validateIndicator(field string, ci *indicators.ConfiguredIndicator) ValidationErrors {
	if ci.Kind == "" {
		return ValidationErrors{{Field: field + ".kind", Message: "indicator kind is required"}}
	}
	if ci.Parameters == nil {
		return nil
	}

	var errs ValidationErrors
	for _, err := range indicators.ValidateParameters(ci.Parameters) {
		errs = append(errs, ValidationError{Field: field + ".parameters", Message: err.Error()})
	}
	return errs
}

// positive reports a scalar that is not greater than zero. References are
// checked after resolution.
func positive(errs ValidationErrors, field string, v variables.Value) ValidationErrors {
	if n, ok := v.Float(); ok && n <= 0 {
		errs = append(errs, ValidationError{Field: field, Message: "value must be greater than 0"})
	}
	return errs
}

func nonNegative(errs ValidationErrors, field string, v variables.Value) ValidationErrors {
	if n, ok := v.Float(); ok && n < 0 {
		errs = append(errs, ValidationError{Field: field, Message: "value must not be negative"})
	}
	return errs
}

func (s *Strategy) validateRisk() ValidationErrors {
	var errs ValidationErrors
	r := &s.Risk

	if r.StopLoss.Enabled {
		if !r.StopLoss.Type.Valid() || r.StopLoss.Type == DistanceRatio {
			errs = append(errs, ValidationError{
				Field:   "risk.stop_loss.type",
				Message: fmt.Sprintf("invalid stop loss type %q", r.StopLoss.Type),
			})
		}
		errs = positive(errs, "risk.stop_loss.value", r.StopLoss.Value)
		if n, ok := r.StopLoss.Value.Float(); ok && r.StopLoss.Type == DistancePercent && n >= 100 {
			errs = append(errs, ValidationError{Field: "risk.stop_loss.value", Message: "percent stop must be less than 100"})
		}
	}

	if r.TakeProfit.Enabled {
		if !r.TakeProfit.Type.Valid() {
			errs = append(errs, ValidationError{
				Field:   "risk.take_profit.type",
				Message: fmt.Sprintf("invalid take profit type %q", r.TakeProfit.Type),
			})
		}
		if r.TakeProfit.Type == DistanceRatio && !r.StopLoss.Enabled {
			errs = append(errs, ValidationError{
				Field:   "risk.take_profit.type",
				Message: "risk_reward target requires an enabled stop loss",
			})
		}
		errs = positive(errs, "risk.take_profit.value", r.TakeProfit.Value)
	}

	if r.TrailingStop.Enabled {
		if !r.TrailingStop.Type.Valid() || r.TrailingStop.Type == DistanceRatio {
			errs = append(errs, ValidationError{
				Field:   "risk.trailing_stop.type",
				Message: fmt.Sprintf("invalid trailing stop type %q", r.TrailingStop.Type),
			})
		}
		errs = positive(errs, "risk.trailing_stop.distance", r.TrailingStop.Distance)
		errs = nonNegative(errs, "risk.trailing_stop.step", r.TrailingStop.Step)
	}

	if r.Breakeven.Enabled {
		errs = positive(errs, "risk.breakeven.trigger", r.Breakeven.Trigger)
		errs = nonNegative(errs, "risk.breakeven.offset", r.Breakeven.Offset)
		trigger, tOK := r.Breakeven.Trigger.Float()
		offset, oOK := r.Breakeven.Offset.Float()
		if tOK && oOK && offset >= trigger {
			errs = append(errs, ValidationError{
				Field:   "risk.breakeven.offset",
				Message: "offset must be less than trigger",
			})
		}
	}

	if !r.PositionSizing.Method.Valid() {
		errs = append(errs, ValidationError{
			Field:   "risk.position_sizing.method",
			Message: fmt.Sprintf("invalid position sizing method %q", r.PositionSizing.Method),
		})
	}
	errs = positive(errs, "risk.position_sizing.value", r.PositionSizing.Value)
	if n, ok := r.PositionSizing.Value.Float(); ok && r.PositionSizing.Method != SizingFixed && n > 100 {
		errs = append(errs, ValidationError{
			Field:   "risk.position_sizing.value",
			Message: "percentage sizing must be 100 or less",
		})
	}

	return errs
}

func isVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}
	return false
}

// ValidateQuick performs minimal validation for quick checks
func (s *Strategy) ValidateQuick() error {
	if s.Metadata.SchemaVersion == "" {
		return fmt.Errorf("%w: metadata.schema_version", ErrMissingRequiredField)
	}
	if !isVersionSupported(s.Metadata.SchemaVersion) {
		return ErrInvalidSchema
	}
	if s.Metadata.Name == "" {
		return fmt.Errorf("%w: metadata.name", ErrMissingRequiredField)
	}
	return nil
}
