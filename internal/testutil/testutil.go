// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"permitflow/internal/notify"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// CaptureNotifier keeps every dispatched message so tests can read the code
// an officer or applicant would have received.
type CaptureNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
	Err      error
}

func (n *CaptureNotifier) Dispatch(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return n.Err
	}
	n.messages = append(n.messages, msg)
	return nil
}

// LastCode returns the most recent code sent for applicationID and purpose.
func (n *CaptureNotifier) LastCode(applicationID string, purpose types.OtpPurpose) (string, bool) {
	msg, ok := n.Last(applicationID, purpose)
	return msg.Code, ok
}

func (n *CaptureNotifier) Last(applicationID string, purpose types.OtpPurpose) (notify.Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := len(n.messages) - 1; i >= 0; i-- {
		if n.messages[i].ApplicationID == applicationID && n.messages[i].Purpose == purpose {
			return n.messages[i], true
		}
	}
	return notify.Message{}, false
}

func (n *CaptureNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Logger discards output but keeps entries for assertions.
func Logger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// Application builds a fresh application at JUNIOR_ENGINEER_PENDING.
func Application(id, number string) *types.Application {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &types.Application{
		ID:                id,
		ApplicationNumber: number,
		PositionType:      "ARCHITECT",
		BuildingType:      "RESIDENTIAL",
		Applicant: types.Applicant{
			ApplicantName:    "Asha Kulkarni",
			ApplicantEmail:   "Asha@Example.com",
			ApplicantContact: "+919800000001",
		},
		Stage:         types.StageJuniorEngineerPending,
		ApprovalChain: []types.ApprovalEntry{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
