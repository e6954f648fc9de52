package types

import (
	"strings"
	"time"
)

// OtpPurpose scopes a challenge. At most one live challenge exists per
// application and purpose.
type OtpPurpose string

const PurposeDownloadAccess OtpPurpose = "download-access"

const signaturePurposePrefix = "signature:"

func SignaturePurpose(role Role) OtpPurpose {
	return OtpPurpose(signaturePurposePrefix + string(role))
}

// SignatureRole returns the role of a signature purpose.
func (p OtpPurpose) SignatureRole() (Role, bool) {
	if !strings.HasPrefix(string(p), signaturePurposePrefix) {
		return "", false
	}
	return Role(strings.TrimPrefix(string(p), signaturePurposePrefix)), true
}

type OtpChallenge struct {
	ApplicationID string     `db:"application_id"`
	Purpose       OtpPurpose `db:"purpose"`
	CodeHash      string     `db:"code_hash"`
	Reference     string     `db:"reference"`
	Stage         Stage      `db:"stage"`
	Attempts      int        `db:"attempts"`
	Consumed      bool       `db:"consumed"`
	ConsumedAt    *time.Time `db:"consumed_at"`
	ExpiresAt     time.Time  `db:"expires_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

// Live reports whether the challenge can still be consumed at now.
func (c *OtpChallenge) Live(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}

// OtpIssue is what a caller learns about a freshly issued challenge. The
// code itself only travels to the notifier.
type OtpIssue struct {
	Reference string    `json:"otpReference"`
	ExpiresAt time.Time `json:"expiresAt"`
}
