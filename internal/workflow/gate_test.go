package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"permitflow/internal/otp"
	"permitflow/internal/store"
	"permitflow/internal/testutil"
	"permitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	mem      *store.Memory
	notifier *testutil.CaptureNotifier
	clock    *testutil.Clock
	gate     *Gate
}

func newGateFixture(t *testing.T, finalizer Finalizer) *gateFixture {
	t.Helper()

	logger, _ := testutil.Logger()
	f := &gateFixture{
		mem:      store.NewMemory(),
		notifier: &testutil.CaptureNotifier{},
		clock:    testutil.NewClock(time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)),
	}
	issuer := otp.NewIssuer(f.mem, f.notifier, logger, otp.Options{Pepper: "pepper", Now: f.clock.Now})
	f.gate = NewGate(f.mem, issuer, finalizer, logger)
	return f
}

// seedAt stores an application already walked to stage.
func (f *gateFixture) seedAt(t *testing.T, id string, stage types.Stage) *types.Application {
	t.Helper()

	app := testutil.Application(id, "BP-"+id)
	require.NoError(t, f.mem.CreateApplication(context.Background(), app))

	app, err := f.mem.MutateApplication(context.Background(), id, func(_ context.Context, _ store.Tx, app *types.Application) error {
		advanceTo(t, app, stage)
		return nil
	})
	require.NoError(t, err)
	return app
}

func (f *gateFixture) code(t *testing.T, id string, role types.Role) string {
	t.Helper()
	code, ok := f.notifier.LastCode(id, types.SignaturePurpose(role))
	require.True(t, ok, "no code dispatched")
	return code
}

func (f *gateFixture) sign(id string, role types.Role, code string) (*types.Application, error) {
	return f.gate.VerifyAndSign(context.Background(), SignRequest{
		ApplicationID: id,
		Role:          role,
		ActorName:     "Officer " + string(role),
		Otp:           code,
		Comments:      "ok",
	})
}

func TestExecutiveEngineerSignsAndReplayFails(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageExecutiveEngineerPending)
	ctx := context.Background()

	issue, err := f.gate.GenerateSigningOtp(ctx, "a1", types.RoleExecutiveEngineer, "")
	require.NoError(t, err)
	assert.NotEmpty(t, issue.Reference)

	msg, ok := f.notifier.Last("a1", types.SignaturePurpose(types.RoleExecutiveEngineer))
	require.True(t, ok)
	assert.Equal(t, "role:EXECUTIVE_ENGINEER", msg.Recipient)
	assert.Equal(t, issue.Reference, msg.Reference)

	code := f.code(t, "a1", types.RoleExecutiveEngineer)

	app, err := f.sign("a1", types.RoleExecutiveEngineer, code)
	require.NoError(t, err)
	assert.Equal(t, types.StageCityEngineerPending, app.Stage)
	require.Len(t, app.ApprovalChain, 4)
	assert.Equal(t, types.RoleExecutiveEngineer, app.ApprovalChain[3].ActorRole)
	assert.Equal(t, types.StageExecutiveEngineerPending, app.ApprovalChain[3].Stage)

	_, err = f.sign("a1", types.RoleExecutiveEngineer, code)
	require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)

	stored, err := f.mem.Application(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StageCityEngineerPending, stored.Stage)
	assert.Len(t, stored.ApprovalChain, 4)
}

func TestGenerateSigningOtpChecksOwnership(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageAssistantEngineerPending)
	ctx := context.Background()

	_, err := f.gate.GenerateSigningOtp(ctx, "a1", types.RoleJuniorEngineer, "")
	require.ErrorIs(t, err, types.ErrUnauthorizedActor)

	_, err = f.gate.GenerateSigningOtp(ctx, "a1", types.RoleApplicant, "")
	require.ErrorIs(t, err, types.ErrUnauthorizedActor)

	_, err = f.gate.GenerateSigningOtp(ctx, "missing", types.RoleAssistantEngineer, "")
	require.ErrorIs(t, err, types.ErrApplicationNotFound)

	assert.Zero(t, f.notifier.Count())
}

func TestVerifyAndSignRejectsOtherRolesCode(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageJuniorEngineerPending)

	_, err := f.gate.GenerateSigningOtp(context.Background(), "a1", types.RoleJuniorEngineer, "")
	require.NoError(t, err)
	code := f.code(t, "a1", types.RoleJuniorEngineer)

	// The code is scoped to the JE signature purpose.
	_, err = f.sign("a1", types.RoleAssistantEngineer, code)
	require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)

	app, err := f.sign("a1", types.RoleJuniorEngineer, code)
	require.NoError(t, err)
	assert.Equal(t, types.StageDocumentVerificationPending, app.Stage)
}

func TestVerifyAndSignValidatesInput(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageJuniorEngineerPending)

	_, err := f.sign("a1", types.RoleJuniorEngineer, "12ab56")
	require.ErrorIs(t, err, types.ErrValidation)

	_, err = f.gate.VerifyAndSign(context.Background(), SignRequest{ApplicationID: "a1", Role: types.RoleJuniorEngineer, Otp: "123456"})
	require.ErrorIs(t, err, types.ErrValidation)
}

func TestExpiredOtpIsRefused(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageClerkPending)

	_, err := f.gate.GenerateSigningOtp(context.Background(), "a1", types.RoleClerk, "")
	require.NoError(t, err)
	code := f.code(t, "a1", types.RoleClerk)

	f.clock.Advance(otp.DefaultTTL)

	_, err = f.sign("a1", types.RoleClerk, code)
	require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)
}

func TestReissueInvalidatesEarlierCode(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageJuniorEngineerPending)
	ctx := context.Background()

	_, err := f.gate.GenerateSigningOtp(ctx, "a1", types.RoleJuniorEngineer, "")
	require.NoError(t, err)
	first := f.code(t, "a1", types.RoleJuniorEngineer)

	_, err = f.gate.GenerateSigningOtp(ctx, "a1", types.RoleJuniorEngineer, "")
	require.NoError(t, err)
	second := f.code(t, "a1", types.RoleJuniorEngineer)

	if first != second {
		_, err = f.sign("a1", types.RoleJuniorEngineer, first)
		require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)
	}

	_, err = f.sign("a1", types.RoleJuniorEngineer, second)
	require.NoError(t, err)
}

func TestTooManyWrongCodesBurnTheChallenge(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageJuniorEngineerPending)

	_, err := f.gate.GenerateSigningOtp(context.Background(), "a1", types.RoleJuniorEngineer, "")
	require.NoError(t, err)
	code := f.code(t, "a1", types.RoleJuniorEngineer)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for range otp.DefaultMaxAttempts {
		_, err := f.sign("a1", types.RoleJuniorEngineer, wrong)
		require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)
	}

	_, err = f.sign("a1", types.RoleJuniorEngineer, code)
	require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)
}

func TestCodeIsBoundToTheStageItWasIssuedAt(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageExecutiveEngineerPending)
	ctx := context.Background()

	_, err := f.gate.GenerateSigningOtp(ctx, "a1", types.RoleExecutiveEngineer, "")
	require.NoError(t, err)
	code := f.code(t, "a1", types.RoleExecutiveEngineer)

	// The application moves on to the EE signature stage by other means.
	_, err = f.mem.MutateApplication(ctx, "a1", func(_ context.Context, _ store.Tx, app *types.Application) error {
		advanceTo(t, app, types.StageExecutiveEngineerSignPending)
		return nil
	})
	require.NoError(t, err)

	_, err = f.sign("a1", types.RoleExecutiveEngineer, code)
	require.ErrorIs(t, err, types.ErrStageMismatch)

	app, err := f.mem.Application(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StageExecutiveEngineerSignPending, app.Stage)
	assert.Nil(t, app.Certificate)
}

type failingFinalizer struct {
	nopFinalizer
	fail atomic.Bool
}

func (f *failingFinalizer) AfterSign(context.Context, *types.Application, types.Stage, time.Time) error {
	if f.fail.Load() {
		return errors.New("signing backend unavailable")
	}
	return nil
}

func TestFinalizerFailureRollsBackEverything(t *testing.T) {
	finalizer := &failingFinalizer{}
	finalizer.fail.Store(true)

	f := newGateFixture(t, finalizer)
	f.seedAt(t, "a1", types.StageCityEngineerSignPending)
	ctx := context.Background()

	_, err := f.gate.GenerateSigningOtp(ctx, "a1", types.RoleCityEngineer, "")
	require.NoError(t, err)
	code := f.code(t, "a1", types.RoleCityEngineer)

	_, err = f.sign("a1", types.RoleCityEngineer, code)
	require.Error(t, err)

	app, err := f.mem.Application(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StageCityEngineerSignPending, app.Stage)
	assert.Nil(t, app.Certificate.IssuedAt)

	// The OTP was not spent by the failed attempt.
	finalizer.fail.Store(false)
	app, err = f.sign("a1", types.RoleCityEngineer, code)
	require.NoError(t, err)
	assert.Equal(t, types.StageApproved, app.Stage)
	assert.True(t, app.Issued())
}

func TestConcurrentSignaturesOnlyOneWins(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StageAssistantEngineerPending)

	_, err := f.gate.GenerateSigningOtp(context.Background(), "a1", types.RoleAssistantEngineer, "")
	require.NoError(t, err)
	code := f.code(t, "a1", types.RoleAssistantEngineer)

	const workers = 50
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		losses    atomic.Int32
	)
	start := make(chan struct{})

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := f.sign("a1", types.RoleAssistantEngineer, code)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, types.ErrInvalidOrExpiredOtp), errors.Is(err, types.ErrStageMismatch):
				losses.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), losses.Load())

	app, err := f.mem.Application(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StageExecutiveEngineerPending, app.Stage)
	assert.Len(t, app.ApprovalChain, 3)
}

func TestRecordPaymentIsIdempotent(t *testing.T) {
	f := newGateFixture(t, nil)
	f.seedAt(t, "a1", types.StagePaymentPending)
	ctx := context.Background()

	payment := types.Payment{Amount: 5000, Reference: "cs_test_1", Provider: "stripe"}

	app, err := f.gate.RecordPayment(ctx, "a1", payment)
	require.NoError(t, err)
	assert.Equal(t, types.StageClerkPending, app.Stage)
	require.NotNil(t, app.Payment)
	assert.False(t, app.Payment.PaidAt.IsZero())
	chain := len(app.ApprovalChain)

	again, err := f.gate.RecordPayment(ctx, "a1", payment)
	require.NoError(t, err)
	assert.Equal(t, types.StageClerkPending, again.Stage)
	assert.Len(t, again.ApprovalChain, chain)

	_, err = f.gate.RecordPayment(ctx, "a1", types.Payment{Amount: 5000, Reference: "cs_test_2"})
	require.ErrorIs(t, err, types.ErrStageMismatch)
}

func TestPendingFiltersByOwnerAndPositionType(t *testing.T) {
	f := newGateFixture(t, nil)
	ctx := context.Background()

	f.seedAt(t, "je", types.StageJuniorEngineerPending)
	f.seedAt(t, "doc", types.StageDocumentVerificationPending)
	f.seedAt(t, "ae", types.StageAssistantEngineerPending)

	other := testutil.Application("ae2", "BP-ae2")
	other.PositionType = "SUPERVISOR"
	other.Stage = types.StageAssistantEngineerPending
	require.NoError(t, f.mem.CreateApplication(ctx, other))

	apps, err := f.gate.Pending(ctx, types.RoleJuniorEngineer, "SUPERVISOR")
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	apps, err = f.gate.Pending(ctx, types.RoleAssistantEngineer, "")
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	apps, err = f.gate.Pending(ctx, types.RoleAssistantEngineer, "SUPERVISOR")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "ae2", apps[0].ID)

	_, err = f.gate.Pending(ctx, types.Role("MAYOR"), "")
	require.ErrorIs(t, err, types.ErrValidation)
}

var errCommit = errors.New("commit failed")

// commitFailure rolls back every mutation after fn has succeeded, the way a
// lost connection at commit would.
type commitFailure struct {
	*store.Memory
	fail atomic.Bool
}

func (s *commitFailure) MutateApplication(ctx context.Context, id string, fn store.MutateFunc) (*types.Application, error) {
	return s.Memory.MutateApplication(ctx, id, func(ctx context.Context, tx store.Tx, app *types.Application) error {
		if err := fn(ctx, tx, app); err != nil {
			return err
		}
		if s.fail.Load() {
			return errCommit
		}
		return nil
	})
}

type recordingFinalizer struct {
	nopFinalizer
	mu        sync.Mutex
	discarded []types.Stage
}

func (f *recordingFinalizer) Discard(_ context.Context, _ *types.Application, signed types.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discarded = append(f.discarded, signed)
	return nil
}

func TestFailedCommitDiscardsDocuments(t *testing.T) {
	finalizer := &recordingFinalizer{}
	f := newGateFixture(t, finalizer)
	apps := &commitFailure{Memory: f.mem}
	apps.fail.Store(true)
	f.gate = NewGate(apps, f.gate.otp, finalizer, f.gate.logger)
	ctx := context.Background()

	f.seedAt(t, "a1", types.StageCityEngineerSignPending)
	_, err := f.gate.GenerateSigningOtp(ctx, "a1", types.RoleCityEngineer, "")
	require.NoError(t, err)

	code := f.code(t, "a1", types.RoleCityEngineer)
	_, err = f.sign("a1", types.RoleCityEngineer, code)
	require.ErrorIs(t, err, errCommit)

	f.seedAt(t, "a2", types.StagePaymentPending)
	_, err = f.gate.RecordPayment(ctx, "a2", types.Payment{Amount: 5000, Reference: "CTR-9", Provider: "counter"})
	require.ErrorIs(t, err, errCommit)

	assert.Equal(t, []types.Stage{types.StageCityEngineerSignPending, types.StagePaymentPending}, finalizer.discarded)

	// Failures before the finalizer ran have nothing to discard.
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.sign("a1", types.RoleCityEngineer, wrong)
	require.ErrorIs(t, err, types.ErrInvalidOrExpiredOtp)
	assert.Len(t, finalizer.discarded, 2)

	apps.fail.Store(false)
	app, err := f.gate.RecordPayment(ctx, "a2", types.Payment{Amount: 5000, Reference: "CTR-9", Provider: "counter"})
	require.NoError(t, err)
	assert.Equal(t, types.StageClerkPending, app.Stage)
	assert.Len(t, finalizer.discarded, 2)
}
