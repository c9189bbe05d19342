package models

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

const (
	RequestSourceCode  = "code"  // client entered a practitioner code
	RequestSourceMatch = "match" // questionnaire, practitioner chosen by matching
)

// ConnectionRequest is a pending ask from a client to connect with a
// practitioner. Code-path requests always carry a practitioner; matched
// requests may wait unassigned until the matcher finds a candidate.
type ConnectionRequest struct {
	BaseUUIDModel
	ClientID       string  `gorm:"type:varchar(64);not null;index" json:"clientId"`
	PractitionerID *string `gorm:"type:varchar(64);index"          json:"practitionerId,omitempty"`
	Status         string  `gorm:"type:varchar(20);not null;index" json:"status"` // 'pending', 'accepted', 'declined'
	Source         string  `gorm:"type:varchar(20);not null"       json:"source"` // 'code', 'match'

	NeededSpecializations []string `gorm:"serializer:json" json:"neededSpecializations,omitempty"`

	// Practitioners that already declined this ask, so a re-match never
	// routes the client back to one of them.
	ExcludedPractitionerIDs []string `gorm:"serializer:json" json:"excludedPractitionerIds,omitempty"`
}

type CodeRequestBody struct {
	Code string `json:"code"`
}

type QuestionnaireRequest struct {
	NeededSpecializations []string `json:"neededSpecializations"`
}
