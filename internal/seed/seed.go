package seed

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/ProductionPulse/internal/types"
	"gopkg.in/yaml.v3"
)

// Roster is the externally seeded machine identity and operator list.
type Roster struct {
	Machine   types.Machine    `yaml:"machine"`
	Operators []types.Operator `yaml:"operators"`
}

// Defaults for a fresh AppState.
type Defaults struct {
	DemoMode          bool
	ProfitPerEmpanada float64
}

// DefaultRoster is the deterministic roster used when no seed file is configured.
func DefaultRoster() Roster {
	return Roster{
		Machine: types.Machine{
			ID:     "machine-001",
			Serial: "EMP-2024-001",
			Model:  "EmpanadaPro X500",
		},
		Operators: []types.Operator{
			{ID: "op-1", Name: "Carlos García"},
			{ID: "op-2", Name: "María López"},
			{ID: "op-3", Name: "Juan Rodríguez"},
		},
	}
}

// Load reads a YAML roster. Missing machine fields fall back to DefaultRoster,
// an empty operator list keeps the default operators.
func Load(path string) (Roster, error) {
	roster := DefaultRoster()
	if strings.TrimSpace(path) == "" {
		return roster, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return roster, fmt.Errorf("failed to read seed file: %w", err)
	}

	var parsed Roster
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return roster, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	if parsed.Machine.ID != "" {
		roster.Machine.ID = parsed.Machine.ID
	}
	if parsed.Machine.Serial != "" {
		roster.Machine.Serial = parsed.Machine.Serial
	}
	if parsed.Machine.Model != "" {
		roster.Machine.Model = parsed.Machine.Model
	}

	if len(parsed.Operators) > 0 {
		seen := make(map[string]bool, len(parsed.Operators))
		for _, op := range parsed.Operators {
			if op.ID == "" {
				return roster, fmt.Errorf("seed file %s: operator %q has no id", path, op.Name)
			}
			if seen[op.ID] {
				return roster, fmt.Errorf("seed file %s: duplicate operator id %q", path, op.ID)
			}
			seen[op.ID] = true
		}
		roster.Operators = parsed.Operators
	}

	return roster, nil
}

// InitialState builds a fresh AppState for the roster. The machine starts RUNNING.
func InitialState(r Roster, d Defaults, now time.Time) types.AppState {
	machine := r.Machine
	machine.Status = types.StatusRunning

	operators := make([]types.Operator, len(r.Operators))
	copy(operators, r.Operators)

	return types.AppState{
		Version:           types.SnapshotVersion,
		Machine:           machine,
		ProductionEvents:  []types.ProductionEvent{},
		DowntimeEvents:    []types.DowntimeEvent{},
		Operators:         operators,
		OperatorSessions:  []types.OperatorSession{},
		DemoMode:          d.DemoMode,
		ProfitPerEmpanada: d.ProfitPerEmpanada,
		LastUpdated:       now,
	}
}
