package types

import (
	"strings"
	"time"
)

type Application struct {
	ID                string `db:"id" json:"id"`
	ApplicationNumber string `db:"application_number" json:"applicationNumber"`
	PositionType      string `db:"position_type" json:"positionType"`
	BuildingType      string `db:"building_type" json:"buildingType"`

	Applicant

	Stage         Stage           `db:"stage" json:"stage"`
	ApprovalChain []ApprovalEntry `db:"approval_chain" json:"approvalChain"`
	ReviewHistory []ReviewRound   `db:"review_history" json:"reviewHistory,omitempty"`
	Rejection     *Rejection      `db:"rejection" json:"rejection,omitempty"`
	Payment       *Payment        `db:"payment" json:"payment,omitempty"`
	Certificate   *Certificate    `db:"certificate" json:"certificate,omitempty"`
	Version       int64           `db:"version" json:"version"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

type Applicant struct {
	ApplicantName    string `db:"applicant_name" json:"applicantName"`
	ApplicantEmail   string `db:"applicant_email" json:"applicantEmail"`
	ApplicantContact string `db:"applicant_contact" json:"applicantContact"`
}

// ApprovalEntry records one stage passed. The chain holds at most one entry
// per stage, in stage order.
type ApprovalEntry struct {
	Stage     Stage     `json:"stage"`
	ActorRole Role      `json:"actorRole"`
	ActorName string    `json:"actorName"`
	Comments  string    `json:"comments,omitempty"`
	SignedAt  time.Time `json:"signedAt"`
}

type Rejection struct {
	RejectedAtStage Stage     `json:"rejectedAtStage"`
	Comments        string    `json:"comments"`
	RejectedBy      Role      `json:"rejectedBy"`
	RejectedByName  string    `json:"rejectedByName,omitempty"`
	RejectedAt      time.Time `json:"rejectedAt"`
	Final           bool      `json:"final"`
}

// ReviewRound is a review cycle closed by a returning rejection.
type ReviewRound struct {
	Chain     []ApprovalEntry `json:"chain"`
	Rejection Rejection       `json:"rejection"`
	// Payment made during the round, if it got that far.
	Payment *Payment `json:"payment,omitempty"`
}

type Payment struct {
	Amount    int64     `json:"amount"`
	Reference string    `json:"reference"`
	Provider  string    `json:"provider"`
	PaidAt    time.Time `json:"paidAt"`
}

type Certificate struct {
	EE2SignedAt *time.Time `json:"ee2SignedAt,omitempty"`
	CE2SignedAt *time.Time `json:"ce2SignedAt,omitempty"`
	IssuedAt    *time.Time `json:"issuedAt,omitempty"`
	Serial      string     `json:"serial,omitempty"`
	Signature   string     `json:"signature,omitempty"`
	StorageKey  string     `json:"storageKey,omitempty"`
}

// Issued reports whether the certificate has been issued and may be
// downloaded.
func (a *Application) Issued() bool {
	return a.Certificate != nil && a.Certificate.IssuedAt != nil
}

// Terminal reports whether no further transition is accepted.
func (a *Application) Terminal() bool {
	switch a.Stage {
	case StageApproved:
		return true
	case StageRejected:
		return a.Rejection != nil && a.Rejection.Final
	}
	return false
}

// Clone returns a deep copy so stores can hand out values that callers are
// free to mutate.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := *a
	out.ApprovalChain = append([]ApprovalEntry(nil), a.ApprovalChain...)
	if a.ReviewHistory != nil {
		out.ReviewHistory = make([]ReviewRound, len(a.ReviewHistory))
		for i, round := range a.ReviewHistory {
			out.ReviewHistory[i] = ReviewRound{
				Chain:     append([]ApprovalEntry(nil), round.Chain...),
				Rejection: round.Rejection,
			}
			if round.Payment != nil {
				p := *round.Payment
				out.ReviewHistory[i].Payment = &p
			}
		}
	}
	if a.Rejection != nil {
		r := *a.Rejection
		out.Rejection = &r
	}
	if a.Payment != nil {
		p := *a.Payment
		out.Payment = &p
	}
	if a.Certificate != nil {
		c := *a.Certificate
		out.Certificate = &c
	}
	return &out
}

// Redacted returns a copy with the applicant's contact details masked, for
// callers that only hold the application ID.
func (a *Application) Redacted() *Application {
	out := a.Clone()
	if out == nil {
		return nil
	}
	out.ApplicantEmail = maskEmail(out.ApplicantEmail)
	out.ApplicantContact = maskContact(out.ApplicantContact)
	return out
}

// maskEmail keeps the first character of the local part and the domain.
func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 1 {
		return strings.Repeat("*", len(email))
	}
	return email[:1] + "***" + email[at:]
}

// maskContact keeps the last four characters.
func maskContact(contact string) string {
	if len(contact) <= 4 {
		return strings.Repeat("*", len(contact))
	}
	return strings.Repeat("*", len(contact)-4) + contact[len(contact)-4:]
}

// ApplicationView is the read-side wire form with the stage label resolved.
type ApplicationView struct {
	*Application
	StageName  string `json:"stageName"`
	StageLabel string `json:"stageLabel"`
	Issued     bool   `json:"issued"`
}

func NewApplicationView(app *Application) ApplicationView {
	return ApplicationView{
		Application: app,
		StageName:   app.Stage.String(),
		StageLabel:  app.Stage.Label(),
		Issued:      app.Issued(),
	}
}
