package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles.
const (
	RoleDonor     = "donor"
	RoleRecipient = "recipient"
)

// User represents an account in the FoodLoop system. A user is either a
// donor (creates donations) or a recipient (claims them).
type User struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username            string             `bson:"username" json:"username"`
	Email               string             `bson:"email" json:"email"`
	HashedPassword      string             `bson:"hashed_password" json:"-"`
	Role                string             `bson:"role" json:"role"`
	PhoneNumber         string             `bson:"phone_number,omitempty" json:"phone_number,omitempty"`
	Location            string             `bson:"location" json:"location"`
	Bio                 string             `bson:"bio,omitempty" json:"bio,omitempty"`
	DietaryRestrictions []string           `bson:"dietary_restrictions,omitempty" json:"dietary_restrictions,omitempty"`
	IsVerified          bool               `bson:"is_verified" json:"is_verified"`
	VerifyToken         string             `bson:"verify_token,omitempty" json:"-"`
	IsActive            bool               `bson:"is_active" json:"is_active"`
	LastActiveAt        time.Time          `bson:"last_active_at,omitempty" json:"last_active_at,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

// PublicUser is the profile shape exposed to other users.
type PublicUser struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
	Role     string             `json:"role"`
	Location string             `json:"location"`
	Bio      string             `json:"bio,omitempty"`
}

// Public strips credentials and contact details from a user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Location: u.Location,
		Bio:      u.Bio,
	}
}

// IsDietaryCompatible reports whether a donation satisfies every one of
// the user's dietary restrictions. A user without restrictions matches
// everything.
func (u *User) IsDietaryCompatible(d *Donation) bool {
	if len(u.DietaryRestrictions) == 0 {
		return true
	}

	tags := make(map[string]bool, len(d.DietaryTags))
	for _, t := range d.DietaryTags {
		tags[strings.ToLower(t)] = true
	}

	for _, r := range u.DietaryRestrictions {
		if !tags[strings.ToLower(r)] {
			return false
		}
	}
	return true
}
