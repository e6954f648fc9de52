package types

import "time"

type DownloadAccessToken struct {
	TokenHash         string    `db:"token_hash"`
	ApplicationID     string    `db:"application_id"`
	ApplicationNumber string    `db:"application_number"`
	ApplicantName     string    `db:"applicant_name"`
	IssuedAt          time.Time `db:"issued_at"`
	ExpiresAt         time.Time `db:"expires_at"`
}

func (t *DownloadAccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// DownloadGrant is handed to the applicant after a verified download OTP.
type DownloadGrant struct {
	Token         string    `json:"downloadToken"`
	ApplicantName string    `json:"applicantName"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type DocumentKind string

const (
	DocumentCertificate        DocumentKind = "certificate"
	DocumentRecommendationForm DocumentKind = "recommendationForm"
	DocumentChallan            DocumentKind = "challan"
)

func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentCertificate, DocumentRecommendationForm, DocumentChallan:
		return true
	}
	return false
}

// StorageKey is where the artifact of this kind lives for an application.
func (k DocumentKind) StorageKey(applicationNumber string) string {
	return "applications/" + applicationNumber + "/" + string(k) + ".pdf"
}

func (k DocumentKind) FileName(applicationNumber string) string {
	return applicationNumber + "-" + string(k) + ".pdf"
}

// Document is a fetched artifact.
type Document struct {
	Kind        DocumentKind
	FileName    string
	ContentType string
	Body        []byte
}
