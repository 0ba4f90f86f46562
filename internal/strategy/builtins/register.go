package builtins

import "vela/internal/strategy"

// RegisterAll registers every built-in strategy with the given registry.
func RegisterAll(r *strategy.Registry) {
	r.Register("mean-reversion", strategy.Factory{
		Schema: MeanReversionSchema,
		New:    NewMeanReversion,
	})
	r.Register("trend-following", strategy.Factory{
		Schema: TrendFollowingSchema,
		New:    NewTrendFollowing,
	})
	r.Register("ml-predictor", strategy.Factory{
		Schema: MLPredictorSchema,
		New:    NewMLPredictor,
	})
}
