package strategy

import (
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

// MigrationFunc upgrades a strategy in place by one schema step
type MigrationFunc func(*Strategy) error

// Migration is one registered schema upgrade
type Migration struct {
	FromVersion string
	ToVersion   string
	Name        string
	Migrate     MigrationFunc
}

// registeredMigrations must form a continuous chain ending at SchemaVersion
var registeredMigrations = []Migration{
	{
		FromVersion: "1.0",
		ToVersion:   "1.1",
		Name:        "Add position sizing and refresh reference names",
		Migrate:     migrateFrom10To11,
	},
}

func init() {
	sort.Slice(registeredMigrations, func(i, j int) bool {
		return mustVersion(registeredMigrations[i].FromVersion).LessThan(mustVersion(registeredMigrations[j].FromVersion))
	})
	for i := 1; i < len(registeredMigrations); i++ {
		prev, curr := registeredMigrations[i-1], registeredMigrations[i]
		if !mustVersion(prev.ToVersion).Equal(mustVersion(curr.FromVersion)) {
			log.Fatal().
				Str("previous", prev.Name).
				Str("next", curr.Name).
				Msg("Strategy migration chain has a gap")
		}
	}
}

// migrateFrom10To11 fills in position sizing, which 1.0 documents lacked,
// and re-syncs cached reference names with the variable list
func migrateFrom10To11(s *Strategy) error {
	if s.Risk.PositionSizing.Method == "" {
		s.Risk.PositionSizing = DefaultPositionSizing()
	}
	lookup := s.Lookup()
	s.SyncReferenceNames(lookup)
	s.RefreshLabels(lookup)
	if s.Metadata.Source == "" {
		s.Metadata.Source = "migrated"
	}
	return nil
}

func parseVersion(v string) (*semver.Version, error) {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		parsed, err = semver.NewVersion(v + ".0")
	}
	return parsed, err
}

func mustVersion(v string) *semver.Version {
	parsed, err := parseVersion(v)
	if err != nil {
		panic(fmt.Sprintf("invalid migration version %q: %v", v, err))
	}
	return parsed
}

// GetMigrationPath returns the migrations that upgrade from one version to
// another, in order. Downgrades and no-ops return an empty path.
func GetMigrationPath(from, to string) ([]Migration, error) {
	fromV, err := parseVersion(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from version: %s", from)
	}
	toV, err := parseVersion(to)
	if err != nil {
		return nil, fmt.Errorf("invalid to version: %s", to)
	}
	if !fromV.LessThan(toV) {
		return []Migration{}, nil
	}

	var path []Migration
	for _, m := range registeredMigrations {
		mFrom := mustVersion(m.FromVersion)
		mTo := mustVersion(m.ToVersion)
		if !mFrom.LessThan(fromV) && !mTo.GreaterThan(toV) {
			path = append(path, m)
		}
	}
	return path, nil
}

// Migrate upgrades a strategy to the current schema version
func Migrate(strategy *Strategy) error {
	if strategy == nil {
		return fmt.Errorf("strategy cannot be nil")
	}

	if strategy.Metadata.SchemaVersion == SchemaVersion {
		return nil
	}

	if err := CheckCompatibility(strategy); err != nil {
		return err
	}

	path, err := GetMigrationPath(strategy.Metadata.SchemaVersion, SchemaVersion)
	if err != nil {
		return err
	}

	for _, m := range path {
		if err := m.Migrate(strategy); err != nil {
			return fmt.Errorf("migration %q from %s failed: %w", m.Name, m.FromVersion, err)
		}
		log.Info().
			Str("strategy", strategy.Metadata.Name).
			Str("from", m.FromVersion).
			Str("to", m.ToVersion).
			Msg("Strategy migrated")
		strategy.Metadata.SchemaVersion = m.ToVersion
	}

	strategy.Metadata.SchemaVersion = SchemaVersion
	return nil
}

// CheckCompatibility checks if a strategy can be migrated to the current version
func CheckCompatibility(strategy *Strategy) error {
	if strategy == nil {
		return fmt.Errorf("strategy cannot be nil")
	}

	if strategy.Metadata.SchemaVersion == "" {
		return fmt.Errorf("missing schema version")
	}

	current, err := parseVersion(strategy.Metadata.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version: %s", strategy.Metadata.SchemaVersion)
	}

	target, err := parseVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("strategy requires schema version %s, but only %s is supported",
			strategy.Metadata.SchemaVersion, SchemaVersion)
	}

	if current.LessThan(target) && current.Major() != target.Major() {
		return fmt.Errorf("no migration path from version %s to %s",
			strategy.Metadata.SchemaVersion, SchemaVersion)
	}

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion() string {
	return SchemaVersion
}

// CompareVersions compares two version strings
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %s", a)
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %s", b)
	}
	return va.Compare(vb), nil
}

// IsVersionSupported checks if a schema version is supported
func IsVersionSupported(version string) bool {
	if isVersionSupported(version) {
		return true
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	// Compatible if major.minor match a supported version
	for _, supported := range SupportedSchemaVersions {
		sv, err := parseVersion(supported)
		if err != nil {
			continue
		}
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}

	return false
}

// VersionInfo contains version information for a strategy
type VersionInfo struct {
	SchemaVersion     string `json:"schema_version"`
	StrategyVersion   string `json:"strategy_version,omitempty"`
	IsCompatible      bool   `json:"is_compatible"`
	RequiresMigration bool   `json:"requires_migration"`
	MigrationPath     string `json:"migration_path,omitempty"`
}

// GetVersionInfo returns version information for a strategy
func GetVersionInfo(strategy *Strategy) (*VersionInfo, error) {
	if strategy == nil {
		return nil, fmt.Errorf("strategy cannot be nil")
	}

	info := &VersionInfo{
		SchemaVersion:   strategy.Metadata.SchemaVersion,
		StrategyVersion: strategy.Metadata.Version,
	}

	err := CheckCompatibility(strategy)
	info.IsCompatible = err == nil

	if strategy.Metadata.SchemaVersion != SchemaVersion {
		cmp, err := CompareVersions(strategy.Metadata.SchemaVersion, SchemaVersion)
		if err == nil && cmp < 0 {
			info.RequiresMigration = true
			info.MigrationPath = fmt.Sprintf("%s -> %s", strategy.Metadata.SchemaVersion, SchemaVersion)
		}
	}

	return info, nil
}
