package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratforge/internal/metrics"
)

// ExportFormat specifies the output format for strategy export
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures strategy export behavior
type ExportOptions struct {
	// Format specifies the output format (yaml or json)
	Format ExportFormat

	// IncludeMetadata stamps id, schema version and update time
	IncludeMetadata bool

	// PrettyPrint enables indented output
	PrettyPrint bool

	// AddComments adds a YAML header comment (YAML only)
	AddComments bool
}

// DefaultExportOptions returns the default export options
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:          FormatYAML,
		IncludeMetadata: true,
		PrettyPrint:     true,
		AddComments:     true,
	}
}

// ImportOptions configures strategy import behavior
type ImportOptions struct {
	// ValidateStrict performs full validation (default: true)
	ValidateStrict bool

	// MaxVariables caps the variable list during strict validation
	MaxVariables int

	// GenerateNewID generates a new ID for imported strategy
	GenerateNewID bool

	// OverrideMetadata allows specifying new metadata
	OverrideMetadata *Metadata
}

// DefaultImportOptions returns the default import options
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		ValidateStrict: true,
		GenerateNewID:  true,
	}
}

// Export serializes a strategy to the specified format. Labels and reference
// names are refreshed on the exported copy.
func Export(strategy *Strategy, opts ExportOptions) ([]byte, error) {
	if strategy == nil {
		return nil, fmt.Errorf("strategy cannot be nil")
	}

	out := strategy.DeepCopy()
	lookup := out.Lookup()
	out.SyncReferenceNames(lookup)
	out.RefreshLabels(lookup)

	if opts.IncludeMetadata {
		out.Metadata.UpdatedAt = time.Now()
		if out.Metadata.ID == "" {
			out.Metadata.ID = uuid.New().String()
		}
		if out.Metadata.SchemaVersion == "" {
			out.Metadata.SchemaVersion = SchemaVersion
		}
		if out.Metadata.Source == "" {
			out.Metadata.Source = "export"
		}
	}

	var (
		data []byte
		err  error
	)
	switch opts.Format {
	case FormatYAML:
		data, err = exportToYAML(out, opts)
	case FormatJSON:
		data, err = exportToJSON(out, opts)
	default:
		err = fmt.Errorf("unsupported export format: %s", opts.Format)
	}
	metrics.RecordStrategyOperation("export", err == nil)
	return data, err
}

func exportToYAML(strategy *Strategy, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.AddComments {
		buf.WriteString("# Stratforge Strategy\n")
		buf.WriteString(fmt.Sprintf("# Schema Version: %s\n", strategy.Metadata.SchemaVersion))
		buf.WriteString(fmt.Sprintf("# Exported: %s\n", time.Now().Format(time.RFC3339)))
		buf.WriteString("\n")
	}

	encoder := yaml.NewEncoder(&buf)
	if opts.PrettyPrint {
		encoder.SetIndent(2)
	}

	if err := encoder.Encode(strategy); err != nil {
		return nil, fmt.Errorf("failed to encode strategy to YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close YAML encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(strategy *Strategy, opts ExportOptions) ([]byte, error) {
	var data []byte
	var err error

	if opts.PrettyPrint {
		data, err = json.MarshalIndent(strategy, "", "  ")
	} else {
		data, err = json.Marshal(strategy)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to encode strategy to JSON: %w", err)
	}

	return data, nil
}

// ExportToFile exports a strategy to a file
func ExportToFile(strategy *Strategy, path string, opts ExportOptions) error {
	if opts.Format == "" {
		opts.Format = FormatFromPath(path)
	}

	data, err := Export(strategy, opts)
	if err != nil {
		return fmt.Errorf("failed to export strategy: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write strategy file: %w", err)
	}

	return nil
}

// FormatFromPath picks the export format from a file extension, defaulting to YAML
func FormatFromPath(path string) ExportFormat {
	if filepath.Ext(path) == ".json" {
		return FormatJSON
	}
	return FormatYAML
}

// Decode parses a strategy from JSON or YAML without validating it
func Decode(data []byte) (*Strategy, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty strategy data")
	}

	// Detect format using first non-whitespace character
	isJSON := false
	for _, b := range data {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		isJSON = b == '{' || b == '['
		break
	}

	var strategy Strategy
	if isJSON {
		if err := json.Unmarshal(data, &strategy); err != nil {
			return nil, fmt.Errorf("failed to parse strategy JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &strategy); err != nil {
			return nil, fmt.Errorf("failed to parse strategy YAML: %w", err)
		}
	}
	return &strategy, nil
}

// Import deserializes a strategy, migrates it to the current schema and
// validates it
func Import(data []byte, opts ImportOptions) (*Strategy, error) {
	strategy, err := Decode(data)
	if err != nil {
		metrics.RecordStrategyOperation("import", false)
		return nil, err
	}

	if opts.GenerateNewID {
		strategy.Metadata.ID = uuid.New().String()
	}

	if opts.OverrideMetadata != nil {
		if opts.OverrideMetadata.Name != "" {
			strategy.Metadata.Name = opts.OverrideMetadata.Name
		}
		if opts.OverrideMetadata.Description != "" {
			strategy.Metadata.Description = opts.OverrideMetadata.Description
		}
		if opts.OverrideMetadata.Author != "" {
			strategy.Metadata.Author = opts.OverrideMetadata.Author
		}
		if len(opts.OverrideMetadata.Tags) > 0 {
			strategy.Metadata.Tags = opts.OverrideMetadata.Tags
		}
	}

	strategy.Metadata.UpdatedAt = time.Now()
	if strategy.Metadata.Source == "" {
		strategy.Metadata.Source = "import"
	}

	if strategy.Metadata.SchemaVersion != "" && strategy.Metadata.SchemaVersion != SchemaVersion {
		if err := Migrate(strategy); err != nil {
			metrics.RecordStrategyOperation("import", false)
			return nil, fmt.Errorf("strategy migration failed: %w", err)
		}
	}

	if opts.ValidateStrict {
		err = strategy.ValidateWithLimit(opts.MaxVariables)
	} else {
		err = strategy.ValidateQuick()
	}
	if err != nil {
		metrics.RecordStrategyOperation("import", false)
		return nil, fmt.Errorf("strategy validation failed: %w", err)
	}

	lookup := strategy.Lookup()
	strategy.SyncReferenceNames(lookup)
	strategy.RefreshLabels(lookup)

	if warnings := strategy.Warnings(); len(warnings) > 0 {
		log.Warn().
			Str("strategy", strategy.Metadata.Name).
			Int("dangling_references", len(warnings)).
			Msg("Imported strategy references missing variables")
	}

	metrics.RecordStrategyOperation("import", true)
	return strategy, nil
}

// ImportFromFile imports a strategy from a file
func ImportFromFile(path string, opts ImportOptions) (*Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}

	strategy, err := Import(data, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to import strategy from %s: %w", path, err)
	}

	return strategy, nil
}

// ImportFromReader imports a strategy from an io.Reader
func ImportFromReader(r io.Reader, opts ImportOptions) (*Strategy, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy data: %w", err)
	}

	return Import(data, opts)
}

// Clone creates a deep copy of a strategy with a new identity
func Clone(strategy *Strategy) (*Strategy, error) {
	if strategy == nil {
		return nil, fmt.Errorf("strategy cannot be nil")
	}

	clone := strategy.DeepCopy()
	now := time.Now()
	clone.Metadata.ID = uuid.New().String()
	clone.Metadata.CreatedAt = now
	clone.Metadata.UpdatedAt = now
	clone.Metadata.Source = "clone"

	return clone, nil
}
