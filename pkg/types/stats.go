package types

// SigningStats is recomputed from signing timestamps on every request and is
// never persisted.
type SigningStats struct {
	Stage          Stage `json:"stage"`
	PendingCount   int   `json:"pendingCount"`
	CompletedCount int   `json:"completedCount"`
	TodayProcessed int   `json:"todayProcessed"`
	WeekProcessed  int   `json:"weekProcessed"`
	MonthProcessed int   `json:"monthProcessed"`
}
