package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"permitflow/internal/store"
	"permitflow/internal/workflow"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
)

type sampleApplication struct {
	ID           string
	Number       string
	PositionType string
	BuildingType string
	Applicant    types.Applicant
	// Stage the sample is walked to after creation.
	Stage types.Stage
}

// Fixed IDs so re-running seed is a no-op.
// To generate new IDs: `go run ./cmd/permitflow nanoid`
var samples = []sampleApplication{
	{
		ID:           "q3Jd8fKx0PzLw2mVb7RtYc5NhA1sGe9U",
		Number:       "BP-2026-0001",
		PositionType: "ARCHITECT",
		BuildingType: "RESIDENTIAL",
		Applicant:    types.Applicant{ApplicantName: "Asha Kulkarni", ApplicantEmail: "asha@example.com", ApplicantContact: "+919800000001"},
		Stage:        types.StageJuniorEngineerPending,
	},
	{
		ID:           "Xw7Lr2bQ9mTn4KzP1vHs6JdYc8FgA3eU",
		Number:       "BP-2026-0002",
		PositionType: "STRUCTURAL_ENGINEER",
		BuildingType: "COMMERCIAL",
		Applicant:    types.Applicant{ApplicantName: "Rohan Deshpande", ApplicantEmail: "rohan@example.com", ApplicantContact: "+919800000002"},
		Stage:        types.StageAssistantEngineerPending,
	},
	{
		ID:           "Mn5Vb8Cx1Zq4Lw7Ke2Rt9Yp3Hs6Jd0Fa",
		Number:       "BP-2026-0003",
		PositionType: "ARCHITECT",
		BuildingType: "RESIDENTIAL",
		Applicant:    types.Applicant{ApplicantName: "Meera Joshi", ApplicantEmail: "meera@example.com", ApplicantContact: "+919800000003"},
		Stage:        types.StagePaymentPending,
	},
	{
		ID:           "Gh2Tj5Kl8Qw1Er4Ty7Ui0Op3As6Df9Zx",
		Number:       "BP-2026-0004",
		PositionType: "SUPERVISOR",
		BuildingType: "INDUSTRIAL",
		Applicant:    types.Applicant{ApplicantName: "Vikram Patil", ApplicantEmail: "vikram@example.com", ApplicantContact: "+919800000004"},
		Stage:        types.StageExecutiveEngineerSignPending,
	},
}

var seedOfficers = map[types.Role]string{
	types.RoleJuniorEngineer:    "Seed Junior Engineer",
	types.RoleAssistantEngineer: "Seed Assistant Engineer",
	types.RoleExecutiveEngineer: "Seed Executive Engineer",
	types.RoleCityEngineer:      "Seed City Engineer",
	types.RoleClerk:             "Seed Clerk",
}

// SeedApplications creates the sample applications and walks each to its
// stage through the workflow transitions. Existing samples are left alone.
func SeedApplications(ctx context.Context, apps store.Applications, logger logrus.FieldLogger, fee int64) error {
	for _, sample := range samples {
		_, err := apps.Application(ctx, sample.ID)
		if err == nil {
			logger.WithField("application_number", sample.Number).Info("sample already present")
			continue
		}
		if !errors.Is(err, types.ErrApplicationNotFound) {
			return err
		}

		now := time.Now().UTC()
		app := &types.Application{
			ID:                sample.ID,
			ApplicationNumber: sample.Number,
			PositionType:      sample.PositionType,
			BuildingType:      sample.BuildingType,
			Applicant:         sample.Applicant,
			Stage:             types.StageJuniorEngineerPending,
			ApprovalChain:     []types.ApprovalEntry{},
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := apps.CreateApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to create %s: %w", sample.Number, err)
		}

		_, err = apps.MutateApplication(ctx, sample.ID, func(_ context.Context, _ store.Tx, app *types.Application) error {
			return walk(app, sample.Stage, fee)
		})
		if err != nil {
			return fmt.Errorf("failed to walk %s to %s: %w", sample.Number, sample.Stage, err)
		}

		logger.WithFields(logrus.Fields{
			"application_number": sample.Number,
			"stage":              sample.Stage.String(),
		}).Info("sample application seeded")
	}

	return nil
}

func walk(app *types.Application, target types.Stage, fee int64) error {
	for app.Stage < target {
		now := time.Now().UTC()
		if app.Stage == types.StagePaymentPending {
			err := workflow.RecordPayment(app, types.Payment{
				Amount:    fee,
				Reference: "SEED-" + app.ApplicationNumber,
				Provider:  "seed",
				PaidAt:    now,
			})
			if err != nil {
				return err
			}
			continue
		}

		owner := app.Stage.Owner()
		if err := workflow.Advance(app, owner, seedOfficers[owner], "seeded", now); err != nil {
			return err
		}
	}
	return nil
}
