package notify

import (
	"context"
	"time"

	"permitflow/pkg/types"
)

// Message is one OTP dispatch. Code is the only place the secret leaves the
// issuer.
type Message struct {
	ApplicationID string           `json:"applicationId"`
	Purpose       types.OtpPurpose `json:"purpose"`
	Recipient     string           `json:"recipient"`
	Code          string           `json:"code"`
	Reference     string           `json:"reference"`
	ExpiresAt     time.Time        `json:"expiresAt"`
}

type Notifier interface {
	Dispatch(ctx context.Context, msg Message) error
}
