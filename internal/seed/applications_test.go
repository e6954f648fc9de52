package seed

import (
	"context"
	"testing"

	"permitflow/internal/store"
	"permitflow/internal/testutil"
	"permitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedApplicationsWalksSamples(t *testing.T) {
	mem := store.NewMemory()
	logger, hook := testutil.Logger()
	ctx := context.Background()

	require.NoError(t, SeedApplications(ctx, mem, logger, 5000))

	for _, sample := range samples {
		app, err := mem.ApplicationByNumber(ctx, sample.Number)
		require.NoError(t, err)
		assert.Equal(t, sample.Stage, app.Stage, sample.Number)
		assert.Len(t, app.ApprovalChain, int(sample.Stage), sample.Number)
	}

	app, err := mem.ApplicationByNumber(ctx, "BP-2026-0004")
	require.NoError(t, err)
	require.NotNil(t, app.Payment)
	assert.Equal(t, int64(5000), app.Payment.Amount)
	assert.Nil(t, app.Certificate)

	// A second run leaves everything in place.
	hook.Reset()
	require.NoError(t, SeedApplications(ctx, mem, logger, 5000))
	assert.Len(t, hook.AllEntries(), len(samples))

	again, err := mem.ApplicationByNumber(ctx, "BP-2026-0004")
	require.NoError(t, err)
	assert.Equal(t, app.Version, again.Version)
	assert.Equal(t, types.StageExecutiveEngineerSignPending, again.Stage)
}
