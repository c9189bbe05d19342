package models

import "time"

const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteExpired  = "expired"
)

// ClientInvite is a practitioner-issued, code-protected token. Only the
// bcrypt hash of the code is persisted; the plaintext travels out-of-band
// to the client contact.
type ClientInvite struct {
	BaseUUIDModel
	PractitionerID string     `gorm:"type:varchar(64);not null;index" json:"practitionerId"`
	CodeHash       string     `gorm:"type:varchar(255);not null"      json:"-"`
	ClientContact  string     `gorm:"type:varchar(255);not null;index" json:"clientContact"`
	Status         string     `gorm:"type:varchar(20);not null;index" json:"status"` // 'pending', 'accepted', 'expired'
	ExpiresAt      time.Time  `gorm:"type:datetime;not null"          json:"expiresAt"`
	AcceptedAt     *time.Time `gorm:"type:datetime"                   json:"acceptedAt,omitempty"`
}

func (i *ClientInvite) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

type CreateInviteRequest struct {
	ClientContact string `json:"clientContact"`
}

type VerifyInviteRequest struct {
	ClientContact string `json:"clientContact"`
	Code          string `json:"code"`
}
