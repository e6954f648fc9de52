package workflow

import (
	"context"
	"fmt"
	"time"

	"permitflow/pkg/types"
)

// SigningStage maps a role to the stage-2 signing stage it owns.
func SigningStage(role types.Role) (types.Stage, bool) {
	switch role {
	case types.RoleExecutiveEngineer:
		return types.StageExecutiveEngineerSignPending, true
	case types.RoleCityEngineer:
		return types.StageCityEngineerSignPending, true
	}
	return 0, false
}

func (g *Gate) Stats(ctx context.Context, role types.Role) (*types.SigningStats, error) {
	stage, ok := SigningStage(role)
	if !ok {
		return nil, types.NewValidationError("role", fmt.Sprintf("no signing statistics for role %q", role))
	}

	pending, err := g.apps.ApplicationsByStage(ctx, []types.Stage{stage}, "")
	if err != nil {
		return nil, err
	}

	signed, err := g.apps.SignedApplications(ctx)
	if err != nil {
		return nil, err
	}

	stats := ComputeStats(stage, len(pending), signed, g.now())
	return &stats, nil
}

// ComputeStats derives the counters from signing timestamps. Weeks start on
// Monday; all windows are calendar windows in now's location.
func ComputeStats(stage types.Stage, pending int, signed []*types.Application, now time.Time) types.SigningStats {
	stats := types.SigningStats{Stage: stage, PendingCount: pending}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekday := (int(today.Weekday()) + 6) % 7
	week := today.AddDate(0, 0, -weekday)
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, app := range signed {
		at := signedAt(app, stage)
		if at == nil {
			continue
		}

		stats.CompletedCount++
		if !at.Before(today) {
			stats.TodayProcessed++
		}
		if !at.Before(week) {
			stats.WeekProcessed++
		}
		if !at.Before(month) {
			stats.MonthProcessed++
		}
	}

	return stats
}

func signedAt(app *types.Application, stage types.Stage) *time.Time {
	if app.Certificate == nil {
		return nil
	}
	switch stage {
	case types.StageExecutiveEngineerSignPending:
		return app.Certificate.EE2SignedAt
	case types.StageCityEngineerSignPending:
		return app.Certificate.CE2SignedAt
	}
	return nil
}
