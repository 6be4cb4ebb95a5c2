// Package ops loads and resolves the simulation's JSON configuration into
// validated runtime values. No component reads configuration ambiently:
// everything is threaded through construction.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/calendar"
	"main/internal/driver"
	"main/internal/obs"
	"main/internal/rules"
	"main/internal/schema"
	"main/internal/strategy"
)

const dayLayout = "2006-01-02"

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Market    string            `json:"market"`
	DataDir   string            `json:"data_dir"`
	OutputDir string            `json:"output_dir"`
	Registry  RegistryConfig    `json:"registry"`
	Rules     RulesConfig       `json:"rules"`
	Calendar  CalendarConfig    `json:"calendar"`
	Agents    []AgentConfig     `json:"agents"`
	Driver    DriverConfig      `json:"driver"`
	Archive   ArchiveConfig     `json:"archive"`
	Profile   obs.ProfileConfig `json:"profile"`
}

// RegistryConfig defines the tradable instrument universe.
type RegistryConfig struct {
	Instruments []InstrumentConfig `json:"instruments"`
}

// InstrumentConfig describes one instrument entry. An empty class is
// inferred from the symbol and name.
type InstrumentConfig struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Class  string `json:"class,omitempty"`
}

// RulesConfig mirrors the market rules JSON.
type RulesConfig struct {
	LotSize            int64                      `json:"lot_size"`
	SettlementSessions int                        `json:"settlement_sessions"`
	AllowFractional    bool                       `json:"allow_fractional"`
	Bands              map[string]decimal.Decimal `json:"bands"`
	Fees               FeesConfig                 `json:"fees"`
}

// FeesConfig mirrors the fee schedule JSON.
type FeesConfig struct {
	CommissionRate  decimal.Decimal `json:"commission_rate"`
	MinCommission   decimal.Decimal `json:"min_commission"`
	StampTaxRate    decimal.Decimal `json:"stamp_tax_rate"`
	TransferFeeRate decimal.Decimal `json:"transfer_fee_rate"`
}

// CalendarConfig mirrors the calendar JSON; start/end are "2006-01-02" days.
type CalendarConfig struct {
	Granularity string   `json:"granularity"`
	Instants    []string `json:"instants,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
}

// AgentConfig describes one simulated agent.
type AgentConfig struct {
	Name        string                   `json:"name"`
	InitialCash decimal.Decimal          `json:"initial_cash"`
	Provider    string                   `json:"provider"`
	Script      []strategy.ScriptStep    `json:"script,omitempty"`
	RepairLots  bool                     `json:"repair_lots,omitempty"`
	Technical   strategy.TechnicalConfig `json:"technical,omitempty"`
	Chaos       *strategy.ChaosConfig    `json:"chaos,omitempty"`
}

// DriverConfig mirrors the decision-loop JSON.
type DriverConfig struct {
	MaxRounds     int    `json:"max_rounds"`
	MaxRetries    uint64 `json:"max_retries"`
	BackoffBaseMS int64  `json:"backoff_base_ms"`
	MaxSteps      int    `json:"max_steps"`
}

// ArchiveConfig points the optional Postgres archive sink. An empty DSN
// disables archiving.
type ArchiveConfig struct {
	DSN       string `json:"dsn"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Market    string
	DataDir   string
	OutputDir string
	Registry  *schema.Registry
	Rules     rules.MarketRules
	Calendar  calendar.Spec
	Agents    []AgentConfig
	Driver    driver.Config
	Archive   ArchiveConfig
	Profile   obs.ProfileConfig
}

// Load reads a JSON config file and resolves every section.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// Resolve validates and converts a parsed config.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.DataDir == "" {
		return Loaded{}, fmt.Errorf("invalid config: data_dir is empty")
	}
	if cfg.OutputDir == "" {
		return Loaded{}, fmt.Errorf("invalid config: output_dir is empty")
	}
	if len(cfg.Agents) == 0 {
		return Loaded{}, fmt.Errorf("invalid config: no agents configured")
	}

	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	marketRules, err := buildRules(cfg.Rules)
	if err != nil {
		return Loaded{}, err
	}
	spec, err := buildCalendar(cfg.Calendar)
	if err != nil {
		return Loaded{}, err
	}
	if err := validateAgents(cfg.Agents); err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Market:    cfg.Market,
		DataDir:   cfg.DataDir,
		OutputDir: cfg.OutputDir,
		Registry:  registry,
		Rules:     marketRules,
		Calendar:  spec,
		Agents:    cfg.Agents,
		Driver: driver.Config{
			MaxRounds:   cfg.Driver.MaxRounds,
			MaxRetries:  cfg.Driver.MaxRetries,
			BackoffBase: time.Duration(cfg.Driver.BackoffBaseMS) * time.Millisecond,
			MaxSteps:    cfg.Driver.MaxSteps,
		},
		Archive: cfg.Archive,
		Profile: cfg.Profile,
	}, nil
}

// Agent returns the named agent's config.
func (l Loaded) Agent(name string) (AgentConfig, bool) {
	for _, agent := range l.Agents {
		if agent.Name == name {
			return agent, true
		}
	}
	return AgentConfig{}, false
}

// BuildProvider constructs the agent's strategy provider, wrapping it with
// fault injection when configured.
func BuildProvider(agent AgentConfig) (strategy.Provider, error) {
	var provider strategy.Provider
	switch agent.Provider {
	case "", "scripted":
		scripted, err := strategy.NewScripted(agent.Name, agent.Script)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", agent.Name, err)
		}
		scripted.RepairLots = agent.RepairLots
		provider = scripted
	case "technical":
		provider = strategy.NewTechnical(agent.Name, agent.Technical)
	default:
		return nil, fmt.Errorf("agent %s: unknown provider %q", agent.Name, agent.Provider)
	}
	if agent.Chaos != nil {
		wrapped, err := strategy.NewChaos(provider, *agent.Chaos)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", agent.Name, err)
		}
		provider = wrapped
	}
	return provider, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("invalid config: registry has no instruments")
	}
	reg := schema.NewRegistry()
	for _, inst := range cfg.Instruments {
		class := schema.InstrumentClass(inst.Class)
		if inst.Class == "" {
			class = schema.InferClass(inst.Symbol, inst.Name)
		}
		if !class.Valid() {
			return nil, fmt.Errorf("invalid config: instrument %s has unknown class %q", inst.Symbol, inst.Class)
		}
		if err := reg.Add(schema.Instrument{Symbol: inst.Symbol, Name: inst.Name, Class: class}); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildRules(cfg RulesConfig) (rules.MarketRules, error) {
	bands := make(map[schema.InstrumentClass]decimal.Decimal, len(cfg.Bands))
	for class, band := range cfg.Bands {
		bands[schema.InstrumentClass(class)] = band
	}
	out := rules.MarketRules{
		LotSize:            cfg.LotSize,
		SettlementSessions: cfg.SettlementSessions,
		AllowFractional:    cfg.AllowFractional,
		Bands:              bands,
		Fees: rules.FeeSchedule{
			CommissionRate:  cfg.Fees.CommissionRate,
			MinCommission:   cfg.Fees.MinCommission,
			StampTaxRate:    cfg.Fees.StampTaxRate,
			TransferFeeRate: cfg.Fees.TransferFeeRate,
		},
	}
	if out.LotSize == 0 {
		out.LotSize = 1
	}
	if err := out.Validate(); err != nil {
		return rules.MarketRules{}, err
	}
	return out, nil
}

func buildCalendar(cfg CalendarConfig) (calendar.Spec, error) {
	start, err := time.Parse(dayLayout, cfg.Start)
	if err != nil {
		return calendar.Spec{}, fmt.Errorf("invalid config: calendar start: %w", err)
	}
	end, err := time.Parse(dayLayout, cfg.End)
	if err != nil {
		return calendar.Spec{}, fmt.Errorf("invalid config: calendar end: %w", err)
	}
	granularity := calendar.Granularity(cfg.Granularity)
	if cfg.Granularity == "" {
		granularity = calendar.Daily
	}
	spec := calendar.Spec{
		Granularity: granularity,
		Instants:    cfg.Instants,
		Start:       start.UTC(),
		End:         end.UTC(),
	}
	if err := spec.Validate(); err != nil {
		return calendar.Spec{}, err
	}
	return spec, nil
}

func validateAgents(agents []AgentConfig) error {
	seen := make(map[string]struct{}, len(agents))
	for _, agent := range agents {
		if agent.Name == "" {
			return fmt.Errorf("invalid config: agent with empty name")
		}
		if _, ok := seen[agent.Name]; ok {
			return fmt.Errorf("invalid config: duplicate agent %q", agent.Name)
		}
		seen[agent.Name] = struct{}{}
		if agent.InitialCash.IsNegative() {
			return fmt.Errorf("invalid config: agent %s initial_cash must be >= 0", agent.Name)
		}
	}
	return nil
}
