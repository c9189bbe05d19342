package models

import "time"

const (
	RoleClient       = "client"
	RolePractitioner = "practitioner"
	RoleAdmin        = "admin"
)

const (
	PractitionerPending   = "pending"
	PractitionerApproved  = "approved"
	PractitionerSuspended = "suspended"
	PractitionerFraud     = "fraud"
	PractitionerDeleted   = "deleted"
)

type Account struct {
	BaseUUIDModel
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"type:varchar(255);not null"             json:"-"`
	DisplayName  string `gorm:"type:varchar(255)"                      json:"displayName"`
	Role         string `gorm:"type:varchar(20);not null;index"        json:"role"` // 'client', 'practitioner', 'admin'

	// Client side of the link. Mutated only by the connection controller.
	ConnectedPractitionerID *string `gorm:"type:varchar(64);index" json:"connectedPractitionerId,omitempty"`

	// Practitioner-only fields
	PractitionerCode    *string    `gorm:"type:varchar(12);uniqueIndex" json:"practitionerCode,omitempty"`
	PractitionerStatus  string     `gorm:"type:varchar(20);index"       json:"practitionerStatus,omitempty"` // 'pending', 'approved', 'suspended', 'fraud', 'deleted'
	FraudAppealDeadline *time.Time `gorm:"type:datetime"                json:"fraudAppealDeadline,omitempty"`
	RotationCursor      int64      `gorm:"not null;default:0"           json:"rotationCursor"`
	Specializations     []string   `gorm:"serializer:json"              json:"specializations,omitempty"`
}

func (a *Account) IsPractitioner() bool {
	return a.Role == RolePractitioner
}

func (a *Account) IsApprovedPractitioner() bool {
	return a.Role == RolePractitioner && a.PractitionerStatus == PractitionerApproved
}

// MatchesSpecializations reports whether the practitioner can serve the
// requested tags. An empty request matches any practitioner.
func (a *Account) MatchesSpecializations(needed []string) bool {
	if len(needed) == 0 {
		return true
	}
	for _, want := range needed {
		for _, have := range a.Specializations {
			if want == have {
				return true
			}
		}
	}
	return false
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	DisplayName     string   `json:"displayName"`
	Role            string   `json:"role"`
	Specializations []string `json:"specializations,omitempty"`
}
