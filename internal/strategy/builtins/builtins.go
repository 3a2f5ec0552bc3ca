// Package builtins provides the strategy implementations that ship with
// autotrader: momentum, breakout and mean reversion.
package builtins

import (
	"autotrader/internal/strategy"
)

// Params groups the tunables of every built-in strategy. It is embedded in
// the service configuration under "strategies".
type Params struct {
	Momentum      MomentumParams      `yaml:"momentum" json:"momentum"`
	Breakout      BreakoutParams      `yaml:"breakout" json:"breakout"`
	MeanReversion MeanReversionParams `yaml:"mean_reversion" json:"mean_reversion"`
}

// DefaultParams returns the tuned defaults for every built-in.
func DefaultParams() Params {
	return Params{
		Momentum:      DefaultMomentumParams(),
		Breakout:      DefaultBreakoutParams(),
		MeanReversion: DefaultMeanReversionParams(),
	}
}

// RegisterAll registers every built-in strategy on r, sharing sizer.
func RegisterAll(r *strategy.Registry, p Params, sizer strategy.RiskSizer) {
	r.Register(NewMomentum(p.Momentum, sizer))
	r.Register(NewBreakout(p.Breakout, sizer))
	r.Register(NewMeanReversion(p.MeanReversion, sizer))
}
