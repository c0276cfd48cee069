// Package ranking combines aggregated feature scores with hunch estimates
// into one ordered ranking per comparison.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	cal, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default calibration", "error", err)
//	}
//
//	recomputer := ranking.NewRecomputer(store, ranking.RecomputerConfig{Calibration: cal})
//	queue := jobs.NewTrainingQueue(jobs.QueueConfig{}, recomputer.Recompute)
//	svc := ranking.NewService(ranking.ServiceConfig{
//		Store:       store,
//		Authorizer:  authorizer,
//		Recomputer:  recomputer,
//		Scheduler:   queue,
//		Calibration: cal,
//	})
//
//	r, err := svc.GetRanking(ctx, comparisonID, userID)
//
// Writes:
//
// A score write only validates, checks permission and upserts. A hunch write
// upserts through the recency window and then refreshes the comparison's
// cached hunch estimates. Average-tier refreshes run in the write path;
// linear and deep refreshes go to the background scheduler.
//
// Reads:
//
// GetRanking recomputes totals and normalization from stored rows on every
// call and merges them with the cached estimates.
//
// Calibration:
//
// Tier thresholds, the recency window and deep estimator hyper-parameters are
// loaded from a JSON file at startup. See configs/ranking.calibration.json for
// the default configuration.
package ranking
