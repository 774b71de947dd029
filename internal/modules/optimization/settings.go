package optimization

import (
	"fmt"
	"math"
	"time"
)

// DateFormat is the layout used for all calculation window dates.
const DateFormat = "2006-01-02"

// Asset identifies one instrument in the universe.
type Asset struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// CalculationSettings holds the hyperparameters and calculation window for a
// Black-Litterman session. Built once per session and read-only thereafter;
// the universe is only reachable through copying accessors.
type CalculationSettings struct {
	Tau             float64
	RiskAversion    float64
	StartDate       string
	CalculationDate string

	universe []Asset
}

// NewCalculationSettings validates and constructs settings.
func NewCalculationSettings(tau, riskAversion float64, startDate, calculationDate string, universe []Asset) (CalculationSettings, error) {
	if tau <= 0 || math.IsNaN(tau) || math.IsInf(tau, 0) {
		return CalculationSettings{}, fmt.Errorf("%w: tau must be a positive finite number, got %v", ErrConfiguration, tau)
	}
	if riskAversion <= 0 || math.IsNaN(riskAversion) || math.IsInf(riskAversion, 0) {
		return CalculationSettings{}, fmt.Errorf("%w: risk_aversion must be a positive finite number, got %v", ErrConfiguration, riskAversion)
	}

	start, err := time.Parse(DateFormat, startDate)
	if err != nil {
		return CalculationSettings{}, fmt.Errorf("%w: first_date %q is not a valid %s date", ErrConfiguration, startDate, DateFormat)
	}
	end, err := time.Parse(DateFormat, calculationDate)
	if err != nil {
		return CalculationSettings{}, fmt.Errorf("%w: last_date %q is not a valid %s date", ErrConfiguration, calculationDate, DateFormat)
	}
	if end.Before(start) {
		return CalculationSettings{}, fmt.Errorf("%w: last_date %s precedes first_date %s", ErrConfiguration, calculationDate, startDate)
	}

	if len(universe) == 0 {
		return CalculationSettings{}, fmt.Errorf("%w: asset_universe must not be empty", ErrConfiguration)
	}
	seen := make(map[string]bool, len(universe))
	assets := make([]Asset, len(universe))
	for i, a := range universe {
		if a.ID == "" {
			return CalculationSettings{}, fmt.Errorf("%w: asset_universe entry %d has an empty id", ErrConfiguration, i)
		}
		if seen[a.ID] {
			return CalculationSettings{}, fmt.Errorf("%w: duplicate asset id %q in asset_universe", ErrConfiguration, a.ID)
		}
		seen[a.ID] = true
		assets[i] = a
	}

	return CalculationSettings{
		Tau:             tau,
		RiskAversion:    riskAversion,
		StartDate:       startDate,
		CalculationDate: calculationDate,
		universe:        assets,
	}, nil
}

// ParseSettings builds CalculationSettings from a nested configuration
// mapping. Required keys:
//
//	parameters.tau              positive float
//	parameters.risk_aversion    positive float
//	market_data.first_date      date string (2006-01-02)
//	market_data.last_date       date string (2006-01-02)
//	market_data.asset_universe  ordered list of {id, label}
//
// Any missing or malformed key fails construction. No defaults are applied.
func ParseSettings(config map[string]interface{}) (CalculationSettings, error) {
	parameters, err := section(config, "parameters")
	if err != nil {
		return CalculationSettings{}, err
	}
	marketData, err := section(config, "market_data")
	if err != nil {
		return CalculationSettings{}, err
	}

	tau, err := floatKey(parameters, "parameters", "tau")
	if err != nil {
		return CalculationSettings{}, err
	}
	riskAversion, err := floatKey(parameters, "parameters", "risk_aversion")
	if err != nil {
		return CalculationSettings{}, err
	}
	firstDate, err := stringKey(marketData, "market_data", "first_date")
	if err != nil {
		return CalculationSettings{}, err
	}
	lastDate, err := stringKey(marketData, "market_data", "last_date")
	if err != nil {
		return CalculationSettings{}, err
	}
	universe, err := universeKey(marketData)
	if err != nil {
		return CalculationSettings{}, err
	}

	return NewCalculationSettings(tau, riskAversion, firstDate, lastDate, universe)
}

// AssetUniverse returns the ordered asset ids. The slice is a fresh copy.
func (s CalculationSettings) AssetUniverse() []string {
	ids := make([]string, len(s.universe))
	for i, a := range s.universe {
		ids[i] = a.ID
	}
	return ids
}

// Assets returns the ordered universe with labels. The slice is a fresh copy.
func (s CalculationSettings) Assets() []Asset {
	assets := make([]Asset, len(s.universe))
	copy(assets, s.universe)
	return assets
}

// AssetCount returns the number of assets in the universe.
func (s CalculationSettings) AssetCount() int {
	return len(s.universe)
}

func section(config map[string]interface{}, name string) (map[string]interface{}, error) {
	raw, ok := config[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q section", ErrConfiguration, name)
	}
	sec, ok := toStringMap(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a mapping", ErrConfiguration, name)
	}
	return sec, nil
}

func floatKey(sec map[string]interface{}, secName, key string) (float64, error) {
	raw, ok := sec[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing key %s.%s", ErrConfiguration, secName, key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: %s.%s must be a number, got %T", ErrConfiguration, secName, key, raw)
	}
}

func stringKey(sec map[string]interface{}, secName, key string) (string, error) {
	raw, ok := sec[key]
	if !ok {
		return "", fmt.Errorf("%w: missing key %s.%s", ErrConfiguration, secName, key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s must be a string, got %T", ErrConfiguration, secName, key, raw)
	}
	return s, nil
}

func universeKey(sec map[string]interface{}) ([]Asset, error) {
	raw, ok := sec["asset_universe"]
	if !ok {
		return nil, fmt.Errorf("%w: missing key market_data.asset_universe", ErrConfiguration)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: market_data.asset_universe must be a list of {id, label} entries, got %T", ErrConfiguration, raw)
	}

	universe := make([]Asset, 0, len(list))
	for i, item := range list {
		entry, ok := toStringMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: asset_universe entry %d must be a mapping", ErrConfiguration, i)
		}
		id, _ := entry["id"].(string)
		label, _ := entry["label"].(string)
		if id == "" {
			return nil, fmt.Errorf("%w: asset_universe entry %d is missing an id", ErrConfiguration, i)
		}
		universe = append(universe, Asset{ID: id, Label: label})
	}
	return universe, nil
}

// toStringMap normalizes the two mapping shapes produced by JSON and YAML
// decoding into interface{} values.
func toStringMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	default:
		return nil, false
	}
}
