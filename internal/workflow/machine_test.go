package workflow

import (
	"testing"
	"time"

	"permitflow/internal/testutil"
	"permitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func advanceTo(t *testing.T, app *types.Application, target types.Stage) {
	t.Helper()
	for app.Stage < target {
		if app.Stage == types.StagePaymentPending {
			require.NoError(t, RecordPayment(app, types.Payment{Amount: 5000, Reference: "PAY-1", Provider: "counter", PaidAt: t0}))
			continue
		}
		require.NoError(t, Advance(app, app.Stage.Owner(), "officer", "", t0))
	}
	require.Equal(t, target, app.Stage)
}

func TestAdvanceWalksTheChain(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")

	advanceTo(t, app, types.StageApproved)

	require.Len(t, app.ApprovalChain, int(types.StageApproved))
	for i, entry := range app.ApprovalChain {
		assert.Equal(t, types.Stage(i), entry.Stage)
		assert.Equal(t, types.Stage(i).Owner(), entry.ActorRole)
	}
	assert.True(t, app.Issued())
	assert.True(t, app.Terminal())
	require.NotNil(t, app.Certificate.EE2SignedAt)
	require.NotNil(t, app.Certificate.CE2SignedAt)
	assert.Equal(t, *app.Certificate.CE2SignedAt, *app.Certificate.IssuedAt)
}

func TestAdvanceRejectsWrongRole(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageExecutiveEngineerPending)

	err := Advance(app, types.RoleCityEngineer, "ce", "", t0)
	require.ErrorIs(t, err, types.ErrUnauthorizedActor)
	assert.Equal(t, types.StageExecutiveEngineerPending, app.Stage)
	assert.Len(t, app.ApprovalChain, 3)
}

func TestAdvanceRequiresPayment(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StagePaymentPending)

	err := Advance(app, types.RoleApplicant, "applicant", "", t0)
	require.ErrorIs(t, err, types.ErrPaymentRequired)

	// Forcing the stage forward does not get past the payment check.
	app.Stage = types.StageClerkPending
	err = Advance(app, types.RoleClerk, "clerk", "", t0)
	require.ErrorIs(t, err, types.ErrPaymentRequired)
}

func TestAdvanceOnTerminalState(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageApproved)

	err := Advance(app, types.RoleCityEngineer, "ce", "", t0)
	require.ErrorIs(t, err, types.ErrTerminalState)
}

func TestAdvanceRefusesDuplicateChainEntry(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageAssistantEngineerPending)

	app.Stage = types.StageDocumentVerificationPending
	err := Advance(app, types.RoleJuniorEngineer, "je", "", t0)
	require.ErrorIs(t, err, types.ErrStageMismatch)
}

func TestRejectReturnsAndResubmitResets(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageAssistantEngineerPending)

	require.NoError(t, Reject(app, types.RoleAssistantEngineer, "ae", "  missing site plan ", t0))
	assert.Equal(t, types.StageRejected, app.Stage)
	require.NotNil(t, app.Rejection)
	assert.False(t, app.Rejection.Final)
	assert.Equal(t, "missing site plan", app.Rejection.Comments)
	assert.Equal(t, types.StageAssistantEngineerPending, app.Rejection.RejectedAtStage)
	assert.False(t, app.Terminal())

	require.NoError(t, Resubmit(app, PolicyReset))
	assert.Equal(t, types.StageJuniorEngineerPending, app.Stage)
	assert.Empty(t, app.ApprovalChain)
	assert.Nil(t, app.Rejection)
	assert.Empty(t, app.ReviewHistory)
}

func TestResubmitArchivePolicyKeepsHistory(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageExecutiveEngineerPending)

	require.NoError(t, Reject(app, types.RoleExecutiveEngineer, "ee", "setback too small", t0))
	require.NoError(t, Resubmit(app, PolicyArchive))

	require.Len(t, app.ReviewHistory, 1)
	assert.Len(t, app.ReviewHistory[0].Chain, 3)
	assert.Equal(t, "setback too small", app.ReviewHistory[0].Rejection.Comments)
	assert.Nil(t, app.ReviewHistory[0].Payment)
	assert.Empty(t, app.ApprovalChain)
}

func TestResubmitClearsPaymentFromReturnedRound(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageClerkPending)
	require.NotNil(t, app.Payment)

	require.NoError(t, Reject(app, types.RoleClerk, "clerk", "wrong survey number", t0))
	require.NoError(t, Resubmit(app, PolicyReset))

	assert.Nil(t, app.Payment)
	assert.Empty(t, app.ReviewHistory)

	advanceTo(t, app, types.StagePaymentPending)
	err := Advance(app, types.RoleApplicant, "applicant", "", t0)
	require.ErrorIs(t, err, types.ErrPaymentRequired)
}

func TestCityEngineerRejectionIsFinal(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	advanceTo(t, app, types.StageCityEngineerPending)

	require.NoError(t, Reject(app, types.RoleCityEngineer, "ce", "zoning violation", t0))
	assert.True(t, app.Rejection.Final)
	assert.True(t, app.Terminal())

	require.ErrorIs(t, Resubmit(app, PolicyReset), types.ErrTerminalState)
	require.ErrorIs(t, Advance(app, types.RoleJuniorEngineer, "je", "", t0), types.ErrTerminalState)
}

func TestRejectRequiresComments(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")

	err := Reject(app, types.RoleJuniorEngineer, "je", "   ", t0)
	require.ErrorIs(t, err, types.ErrValidation)
	assert.Equal(t, types.StageJuniorEngineerPending, app.Stage)
	assert.Nil(t, app.Rejection)
}

func TestRejectNotPermittedAtSignatureStages(t *testing.T) {
	for _, target := range []types.Stage{types.StageExecutiveEngineerSignPending, types.StageCityEngineerSignPending} {
		app := testutil.Application("app-1", "BP-1")
		advanceTo(t, app, target)

		err := Reject(app, target.Owner(), "officer", "no", t0)
		require.ErrorIs(t, err, types.ErrRejectionNotPermitted, target.String())
		assert.Equal(t, target, app.Stage)
	}
}

func TestResubmitOnlyFromRejected(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")
	require.ErrorIs(t, Resubmit(app, PolicyReset), types.ErrStageMismatch)
}

func TestRecordPaymentValidation(t *testing.T) {
	app := testutil.Application("app-1", "BP-1")

	err := RecordPayment(app, types.Payment{Amount: 5000, Reference: "X"})
	require.ErrorIs(t, err, types.ErrStageMismatch)

	advanceTo(t, app, types.StagePaymentPending)

	require.ErrorIs(t, RecordPayment(app, types.Payment{Amount: 0, Reference: "X"}), types.ErrValidation)
	require.ErrorIs(t, RecordPayment(app, types.Payment{Amount: 10, Reference: " "}), types.ErrValidation)
	assert.Nil(t, app.Payment)

	require.NoError(t, RecordPayment(app, types.Payment{Amount: 5000, Reference: "R-1", PaidAt: t0}))
	assert.Equal(t, types.StageClerkPending, app.Stage)
	last := app.ApprovalChain[len(app.ApprovalChain)-1]
	assert.Equal(t, types.RoleApplicant, last.ActorRole)
	assert.Equal(t, types.StagePaymentPending, last.Stage)
}

func TestParseReturningPolicy(t *testing.T) {
	p, err := ParseReturningPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReset, p)

	p, err = ParseReturningPolicy(" Archive ")
	require.NoError(t, err)
	assert.Equal(t, PolicyArchive, p)

	_, err = ParseReturningPolicy("keep")
	require.Error(t, err)
}
