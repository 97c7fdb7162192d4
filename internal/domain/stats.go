package domain

type ResolutionStats struct {
	TotalResolutions    int
	ConfirmedSuccessful int
	ConfirmedFailed     int
	Reopened            int
	Expired             int
	AvgSatisfaction     float64
	RatedCount          int
	Breakdown           []ActionTypeBreakdown
}

// SuccessRate is confirmed successes over all tracked resolutions, in percent.
func (s ResolutionStats) SuccessRate() float64 {
	if s.TotalResolutions == 0 {
		return 0
	}
	return float64(s.ConfirmedSuccessful) / float64(s.TotalResolutions) * 100
}

type ActionTypeBreakdown struct {
	ActionType ActionType
	Total      int
	Confirmed  int
	Failed     int
}

type ConfidenceStats struct {
	TotalActions  int
	TotalRollback int
	AvgConfidence float64
	BucketBelow30 int
	Bucket30to60  int
	Bucket60to80  int
	Bucket80Plus  int
}
