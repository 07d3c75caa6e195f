package scoring

// FusionResult is the ensemble's final verdict for one candidate, after
// combining the heuristic baseline with the predictive scorer's
// ML/historical/pattern-based utility per §4.3.6.
type FusionResult struct {
	Decision   bool
	Combined   float64
	Confidence float64
	ReasonTag  string
}

// Fuse implements Refine(heuristicDecision, heuristicConf, mlUtility,
// mlConf): a weighted blend of the heuristic and predictive scores, with
// a reason tag recording whether the predictive score overrode the
// heuristic and in which direction.
func Fuse(heuristic, predictive Scoring, mlWeight float64) FusionResult {
	if mlWeight <= 0 {
		mlWeight = 0.3
	}
	heuristicWeight := 1 - mlWeight

	combined := heuristicWeight*heuristic.Score + mlWeight*predictive.Score
	confidence := heuristicWeight*heuristic.Confidence + mlWeight*predictive.Confidence
	decision := combined > 0.5

	var tag string
	switch {
	case predictive.Confidence == 0:
		tag = "ml_unavailable_heuristic_only"
	case decision == heuristic.Decision:
		tag = "ml_confirmed"
	case decision:
		tag = "ml_overrode_to_create"
	default:
		tag = "ml_overrode_to_skip"
	}

	return FusionResult{
		Decision:   decision,
		Combined:   combined,
		Confidence: confidence,
		ReasonTag:  tag,
	}
}
