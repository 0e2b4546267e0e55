package model

// RegimeFloat is a nullable float keyed by regime label, serialized as JSON
// null when fewer than 20 in-regime observations exist (§3, §8 invariant 6).
type RegimeFloat map[string]*float64

// RiskMetrics is one asset's regime-conditioned risk record (§3).
type RiskMetrics struct {
	AssetID               string            `json:"asset_id"`
	Name                  string            `json:"name"`
	Category              string            `json:"category"`
	CurrentSharpe         float64           `json:"current_sharpe"`
	AnnualizedReturn      float64           `json:"annualized_return"`
	AnnualizedVolatility  float64           `json:"annualized_volatility"`
	MaxDrawdown           float64           `json:"max_drawdown"`
	SharpeByRegime        RegimeFloat       `json:"sharpe_by_regime"`
	ReturnByRegime        RegimeFloat       `json:"return_by_regime"`
	VolatilityByRegime    RegimeFloat       `json:"volatility_by_regime"`
	CorrelationWithGLCI   float64           `json:"correlation_with_glci"`
	RollingSharpe         []RollingPoint    `json:"rolling_sharpe"`
}

// RollingPoint is one (date, value) entry in a rolling-statistic series.
type RollingPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// AssetConfig declares one tracked asset's display info for the risk-metrics
// engine (ported from the original pipeline's ASSET_CONFIG).
type AssetConfig struct {
	AssetID  string `json:"asset_id" yaml:"asset_id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// RegimeMatrix is the assets x regimes heatmap payload (§4.6).
type RegimeMatrix struct {
	Assets     []string      `json:"assets"`
	Regimes    []string      `json:"regimes"`
	SharpeData [][]*float64  `json:"sharpe_data"`
	ReturnData [][]*float64  `json:"return_data"`
}

// RiskDashboard bundles every asset's metrics plus the heatmap matrix.
type RiskDashboard struct {
	ComputedAt    string        `json:"computed_at"`
	RiskFreeRate  float64       `json:"risk_free_rate"`
	CurrentRegime string        `json:"current_regime"`
	Assets        []RiskMetrics `json:"assets"`
	RegimeMatrix  RegimeMatrix  `json:"regime_matrix"`
}
