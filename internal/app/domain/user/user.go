package user

import "time"

// User is a learner or instructor. ExternalID is the identifier issued by the
// authentication provider and carried in bearer tokens.
type User struct {
	ID         string    `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"externalId"`
	Email      string    `db:"email" json:"email"`
	FirstName  string    `db:"first_name" json:"firstName,omitempty"`
	LastName   string    `db:"last_name" json:"lastName,omitempty"`
	Role       string    `db:"role" json:"role"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Workspace types.
const (
	WorkspacePersonal = "personal"
	WorkspacePublic   = "public"
)

// Workspace owns courses.
type Workspace struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	Name      string    `db:"name" json:"name"`
	Type      string    `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
