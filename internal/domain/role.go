package domain

// Role mirrors the roles the platform encodes in its JWTs. The media service
// only checks them; accounts and token issuance live in the main application.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)
