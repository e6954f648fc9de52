package workflow

import (
	"fmt"
	"strings"
	"time"

	"permitflow/pkg/types"
)

// ReturningPolicy decides what happens to the approval chain when a returned
// application is resubmitted.
type ReturningPolicy string

const (
	// PolicyReset discards the chain of the rejected round.
	PolicyReset ReturningPolicy = "reset"
	// PolicyArchive moves the chain and the rejection into ReviewHistory.
	PolicyArchive ReturningPolicy = "archive"
)

func ParseReturningPolicy(v string) (ReturningPolicy, error) {
	switch p := ReturningPolicy(strings.ToLower(strings.TrimSpace(v))); p {
	case "", PolicyReset:
		return PolicyReset, nil
	case PolicyArchive:
		return PolicyArchive, nil
	default:
		return "", fmt.Errorf("unknown returning rejection policy %q", v)
	}
}

// Advance moves app past its current stage on behalf of role. The caller is
// responsible for having consumed the signing OTP in the same transaction.
func Advance(app *types.Application, role types.Role, actorName, comments string, now time.Time) error {
	if app.Terminal() {
		return types.ErrTerminalState
	}
	if app.Stage == types.StageRejected {
		return types.ErrStageMismatch
	}
	if !role.Owns(app.Stage) {
		return types.ErrUnauthorizedActor
	}
	if app.Stage >= types.StagePaymentPending && app.Payment == nil {
		return types.ErrPaymentRequired
	}

	next, ok := app.Stage.Next()
	if !ok {
		return types.ErrStageMismatch
	}

	if n := len(app.ApprovalChain); n > 0 && app.ApprovalChain[n-1].Stage >= app.Stage {
		return fmt.Errorf("approval chain already holds stage %s: %w", app.Stage, types.ErrStageMismatch)
	}

	app.ApprovalChain = append(app.ApprovalChain, types.ApprovalEntry{
		Stage:     app.Stage,
		ActorRole: role,
		ActorName: strings.TrimSpace(actorName),
		Comments:  strings.TrimSpace(comments),
		SignedAt:  now,
	})
	stampCertificate(app, app.Stage, now)
	app.Stage = next

	return nil
}

// stampCertificate records the stage-2 signature times. The CE2 signature
// is the moment of issue.
func stampCertificate(app *types.Application, signed types.Stage, now time.Time) {
	switch signed {
	case types.StageExecutiveEngineerSignPending, types.StageCityEngineerSignPending:
	default:
		return
	}

	if app.Certificate == nil {
		app.Certificate = &types.Certificate{}
	}

	at := now
	if signed == types.StageExecutiveEngineerSignPending {
		app.Certificate.EE2SignedAt = &at
		return
	}
	app.Certificate.CE2SignedAt = &at
	app.Certificate.IssuedAt = &at
}

// Reject closes the current review round. Comments must already be
// validated; an empty value here is a programming error and still refused.
func Reject(app *types.Application, role types.Role, actorName, comments string, now time.Time) error {
	comments = strings.TrimSpace(comments)
	if comments == "" {
		return types.NewValidationError("rejectionComments", "rejection comments are required")
	}
	if app.Terminal() {
		return types.ErrTerminalState
	}
	if app.Stage == types.StageRejected {
		return types.ErrStageMismatch
	}
	if !role.Owns(app.Stage) {
		return types.ErrUnauthorizedActor
	}
	if !app.Stage.Rejectable() {
		return types.ErrRejectionNotPermitted
	}

	app.Rejection = &types.Rejection{
		RejectedAtStage: app.Stage,
		Comments:        comments,
		RejectedBy:      role,
		RejectedByName:  strings.TrimSpace(actorName),
		RejectedAt:      now,
		Final:           app.Stage.FinalRejection(),
	}
	app.Stage = types.StageRejected

	return nil
}

// Resubmit reopens a returned application at the first stage. A payment made
// in the returned round does not carry over; the next round pays again.
func Resubmit(app *types.Application, policy ReturningPolicy) error {
	if app.Terminal() {
		return types.ErrTerminalState
	}
	if app.Stage != types.StageRejected || app.Rejection == nil {
		return types.ErrStageMismatch
	}

	if policy == PolicyArchive {
		app.ReviewHistory = append(app.ReviewHistory, types.ReviewRound{
			Chain:     app.ApprovalChain,
			Rejection: *app.Rejection,
			Payment:   app.Payment,
		})
	}

	app.ApprovalChain = []types.ApprovalEntry{}
	app.Rejection = nil
	app.Payment = nil
	app.Stage = types.StageJuniorEngineerPending

	return nil
}

// RecordPayment attaches the payment and moves the application out of
// PAYMENT_PENDING.
func RecordPayment(app *types.Application, payment types.Payment) error {
	if app.Terminal() {
		return types.ErrTerminalState
	}
	if app.Stage != types.StagePaymentPending {
		return types.ErrStageMismatch
	}
	if payment.Amount <= 0 {
		return types.NewValidationError("amount", "payment amount must be positive")
	}
	if strings.TrimSpace(payment.Reference) == "" {
		return types.NewValidationError("reference", "payment reference is required")
	}

	app.Payment = &payment
	return Advance(app, types.RoleApplicant, app.ApplicantName, "payment "+payment.Reference, payment.PaidAt)
}
