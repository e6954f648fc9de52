package workflow

import (
	"context"
	"strings"
	"time"

	"permitflow/internal/store"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
)

type Rejections struct {
	apps   store.Applications
	policy ReturningPolicy
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewRejections(apps store.Applications, policy ReturningPolicy, logger logrus.FieldLogger, now func() time.Time) *Rejections {
	if now == nil {
		now = time.Now
	}
	if policy == "" {
		policy = PolicyReset
	}
	return &Rejections{apps: apps, policy: policy, logger: logger, now: now}
}

type RejectRequest struct {
	ApplicationID string
	Role          types.Role
	ActorName     string
	Comments      string
}

// Reject validates the comments before touching the application, then
// records the rejection. Whether it is final depends only on the stage.
func (r *Rejections) Reject(ctx context.Context, req RejectRequest) (*types.Application, error) {
	if strings.TrimSpace(req.Comments) == "" {
		return nil, types.NewValidationError("rejectionComments", "rejection comments are required")
	}
	if !req.Role.Reviewer() {
		return nil, types.ErrUnauthorizedActor
	}

	app, err := r.apps.MutateApplication(ctx, req.ApplicationID, func(_ context.Context, _ store.Tx, app *types.Application) error {
		return Reject(app, req.Role, req.ActorName, req.Comments, r.now())
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"actor_role":     req.Role,
		"rejected_at":    app.Rejection.RejectedAtStage.String(),
		"final":          app.Rejection.Final,
	}).Info("application rejected")

	return app, nil
}

// Resubmit reopens a returned application after the applicant's correction.
func (r *Rejections) Resubmit(ctx context.Context, applicationID string) (*types.Application, error) {
	app, err := r.apps.MutateApplication(ctx, applicationID, func(_ context.Context, _ store.Tx, app *types.Application) error {
		return Resubmit(app, r.policy)
	})
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"policy":         r.policy,
	}).Info("application resubmitted")

	return app, nil
}
