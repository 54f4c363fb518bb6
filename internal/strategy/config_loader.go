package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"strategy-core/internal/events"
	"strategy-core/pkg/db"
)

// Definition is a strategy configuration entry in the YAML definitions file.
type Definition struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Description string         `yaml:"description"`
	Version     string         `yaml:"version"`
	Author      string         `yaml:"author"`
	Timeframes  []string       `yaml:"timeframes"`
	Parameters  map[string]any `yaml:"parameters"`
	IsActive    bool           `yaml:"is_active"`
}

// DefinitionFile is the top-level YAML structure.
type DefinitionFile struct {
	Strategies []Definition `yaml:"strategies"`
}

// LoadDefinitions reads strategy definitions from a YAML file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file DefinitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategy definitions: %w", err)
	}
	return file.Strategies, nil
}

// SyncDefinitions upserts definitions into the database so restarts can
// rebuild instances without the file.
func SyncDefinitions(ctx context.Context, database *db.Database, defs []Definition) error {
	for _, def := range defs {
		paramsJSON, err := json.Marshal(def.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters for %s: %w", def.Name, err)
		}
		row := db.StrategyInstance{
			ID:           def.ID,
			Name:         def.Name,
			StrategyType: def.Type,
			Description:  def.Description,
			Version:      def.Version,
			Author:       def.Author,
			Timeframes:   strings.Join(def.Timeframes, ","),
			Parameters:   string(paramsJSON),
			IsActive:     def.IsActive,
		}
		if err := database.UpsertStrategyInstance(ctx, row); err != nil {
			return fmt.Errorf("upsert strategy %s: %w", def.Name, err)
		}
	}
	return nil
}

// Build constructs an uninitialized instance plus its configuration document
// from a definition.
func Build(def Definition, bus *events.Bus) (*Instance, Config, error) {
	var strat Strategy
	switch def.Type {
	case "ma_cross":
		strat = NewMACross()
	case "rsi":
		strat = NewRSIReversion()
	default:
		return nil, Config{}, fmt.Errorf("unknown strategy type: %s", def.Type)
	}

	inst := New(def.ID, strat, bus)
	cfg := Config{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Version:     def.Version,
		Author:      def.Author,
		Timeframes:  def.Timeframes,
	}
	for name, value := range def.Parameters {
		cfg.Parameters = append(cfg.Parameters, Parameter{Name: name, Value: value})
	}
	return inst, cfg, nil
}

// DefinitionFromRow converts a persisted strategy_instances row back into a
// Definition.
func DefinitionFromRow(row db.StrategyInstance) (Definition, error) {
	def := Definition{
		ID:          row.ID,
		Name:        row.Name,
		Type:        row.StrategyType,
		Description: row.Description,
		Version:     row.Version,
		Author:      row.Author,
		IsActive:    row.IsActive,
	}
	if row.Timeframes != "" {
		def.Timeframes = strings.Split(row.Timeframes, ",")
	}
	if row.Parameters != "" {
		if err := json.Unmarshal([]byte(row.Parameters), &def.Parameters); err != nil {
			return def, fmt.Errorf("unmarshal parameters for %s: %w", row.ID, err)
		}
	}
	return def, nil
}
