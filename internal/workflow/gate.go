package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitflow/internal/otp"
	"permitflow/internal/store"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
)

// Finalizer is called inside the mutation transaction, after the stage has
// moved. An error aborts the whole operation.
//
// Discard undoes the side effects of a successful AfterSign or AfterPayment
// whose transaction then failed to commit. Payments are discarded with
// StagePaymentPending as the signed stage.
type Finalizer interface {
	AfterSign(ctx context.Context, app *types.Application, signed types.Stage, now time.Time) error
	AfterPayment(ctx context.Context, app *types.Application, now time.Time) error
	Discard(ctx context.Context, app *types.Application, signed types.Stage) error
}

type nopFinalizer struct{}

func (nopFinalizer) AfterSign(context.Context, *types.Application, types.Stage, time.Time) error {
	return nil
}

func (nopFinalizer) AfterPayment(context.Context, *types.Application, time.Time) error {
	return nil
}

func (nopFinalizer) Discard(context.Context, *types.Application, types.Stage) error {
	return nil
}

// Gate binds OTP verification and stage transitions into one atomic step.
type Gate struct {
	apps      store.Applications
	otp       *otp.Issuer
	finalizer Finalizer
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewGate(apps store.Applications, issuer *otp.Issuer, finalizer Finalizer, logger logrus.FieldLogger) *Gate {
	if finalizer == nil {
		finalizer = nopFinalizer{}
	}
	return &Gate{
		apps:      apps,
		otp:       issuer,
		finalizer: finalizer,
		logger:    logger,
		now:       issuer.Now,
	}
}

// GenerateSigningOtp issues a signature challenge bound to the application's
// current stage. recipient defaults to the role's delivery channel.
func (g *Gate) GenerateSigningOtp(ctx context.Context, applicationID string, role types.Role, recipient string) (*types.OtpIssue, error) {
	if !role.Reviewer() {
		return nil, types.ErrUnauthorizedActor
	}

	app, err := g.apps.Application(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if err := checkActionable(app, role); err != nil {
		return nil, err
	}

	if strings.TrimSpace(recipient) == "" {
		recipient = "role:" + string(role)
	}

	return g.otp.Issue(ctx, app.ID, types.SignaturePurpose(role), app.Stage, recipient)
}

type SignRequest struct {
	ApplicationID string
	Role          types.Role
	ActorName     string
	Otp           string
	Comments      string
}

// VerifyAndSign consumes the OTP and advances the application in one
// transaction. Nothing is written unless every step succeeds.
func (g *Gate) VerifyAndSign(ctx context.Context, req SignRequest) (*types.Application, error) {
	if !req.Role.Reviewer() {
		return nil, types.ErrUnauthorizedActor
	}
	if strings.TrimSpace(req.ActorName) == "" {
		return nil, types.NewValidationError("actorName", "actor name is required")
	}
	if _, err := g.otp.Normalize(req.Otp); err != nil {
		return nil, err
	}

	purpose := types.SignaturePurpose(req.Role)

	var (
		signed    types.Stage
		finalized bool
	)
	app, err := g.apps.MutateApplication(ctx, req.ApplicationID, func(ctx context.Context, tx store.Tx, app *types.Application) error {
		now := g.now()

		ch, err := g.otp.Consume(ctx, tx, app.ID, purpose, req.Otp)
		if err != nil {
			return err
		}
		if ch.Stage != app.Stage {
			return types.ErrStageMismatch
		}

		signed = app.Stage
		if err := Advance(app, req.Role, req.ActorName, req.Comments, now); err != nil {
			return err
		}

		if err := g.finalizer.AfterSign(ctx, app, signed, now); err != nil {
			return err
		}
		finalized = true
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrInvalidOrExpiredOtp) {
			g.otp.RecordFailure(ctx, req.ApplicationID, purpose)
		}
		if finalized {
			g.discard(ctx, req.ApplicationID, signed)
		}
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"actor_role":     req.Role,
		"stage":          app.Stage.String(),
	}).Info("application signed")

	return app, nil
}

var errPaymentAlreadyRecorded = errors.New("payment already recorded")

// RecordPayment stores the fee payment and moves the application to the
// clerk. A repeated delivery with the same reference is a no-op.
func (g *Gate) RecordPayment(ctx context.Context, applicationID string, payment types.Payment) (*types.Application, error) {
	if payment.PaidAt.IsZero() {
		payment.PaidAt = g.now()
	}

	var finalized bool
	app, err := g.apps.MutateApplication(ctx, applicationID, func(ctx context.Context, _ store.Tx, app *types.Application) error {
		if app.Stage > types.StagePaymentPending && app.Payment != nil && app.Payment.Reference == payment.Reference {
			return errPaymentAlreadyRecorded
		}
		if err := RecordPayment(app, payment); err != nil {
			return err
		}
		if err := g.finalizer.AfterPayment(ctx, app, payment.PaidAt); err != nil {
			return err
		}
		finalized = true
		return nil
	})
	if errors.Is(err, errPaymentAlreadyRecorded) {
		return g.apps.Application(ctx, applicationID)
	}
	if err != nil {
		if finalized {
			g.discard(ctx, applicationID, types.StagePaymentPending)
		}
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"reference":      payment.Reference,
		"provider":       payment.Provider,
	}).Info("payment recorded")

	return app, nil
}

// discard cleans up after a finalizer whose transaction did not commit. It
// only runs while the application still sits at the stage that failed to
// move, so documents written by a later successful attempt are left alone.
func (g *Gate) discard(ctx context.Context, applicationID string, signed types.Stage) {
	entry := g.logger.WithFields(logrus.Fields{
		"application_id": applicationID,
		"stage":          signed.String(),
	})

	app, err := g.apps.Application(ctx, applicationID)
	if err != nil {
		entry.WithError(err).Warn("failed to load application for document cleanup")
		return
	}
	if app.Stage != signed {
		return
	}

	if err := g.finalizer.Discard(ctx, app, signed); err != nil {
		entry.WithError(err).Warn("failed to discard documents of an aborted step")
	}
}

func (g *Gate) Application(ctx context.Context, applicationID string) (*types.Application, error) {
	return g.apps.Application(ctx, applicationID)
}

// Pending lists the applications the role may act on now. positionType only
// narrows the Assistant Engineer queue.
func (g *Gate) Pending(ctx context.Context, role types.Role, positionType string) ([]*types.Application, error) {
	if !role.Valid() {
		return nil, types.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
	if role != types.RoleAssistantEngineer {
		positionType = ""
	}
	return g.apps.ApplicationsByStage(ctx, role.Stages(), positionType)
}

// checkActionable is the read-side precheck shared by OTP generation. The
// authoritative checks run again inside the mutation.
func checkActionable(app *types.Application, role types.Role) error {
	if app.Terminal() {
		return types.ErrTerminalState
	}
	if app.Stage == types.StageRejected {
		return types.ErrStageMismatch
	}
	if !role.Owns(app.Stage) {
		return types.ErrUnauthorizedActor
	}
	return nil
}
