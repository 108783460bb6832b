package models

import "time"

// Role is the authorization level attached to a profile.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleWaiter  Role = "waiter"
	RoleKitchen Role = "kitchen"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleWaiter, RoleKitchen:
		return true
	}
	return false
}

// Profile is the authorization record for an identity (one per identity id).
type Profile struct {
	ID        string    `bson:"_id" json:"id"` // identity provider subject
	Email     string    `bson:"email" json:"email"`
	Role      Role      `bson:"role" json:"role"`
	Username  string    `bson:"username" json:"username"`
	FullName  string    `bson:"fullName" json:"fullName"`
	AvatarURL string    `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
