package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SimulationPrefix marks usernames, platform ids and credentials that belong
// to simulation accounts. Publishing for those never touches the network.
const SimulationPrefix = "test"

// Account is one managed Instagram business identity
type Account struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username    string             `bson:"username" json:"username"`
	InstagramID string             `bson:"instagram_id" json:"instagram_id"`
	AccessToken string             `bson:"access_token" json:"-"`
	AccountType string             `bson:"account_type" json:"account_type"`
	Niche       string             `bson:"niche,omitempty" json:"niche,omitempty"`
	IsActive    bool               `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsSimulationValue reports whether v carries the simulation prefix.
func IsSimulationValue(v string) bool {
	return strings.HasPrefix(v, SimulationPrefix)
}

// IsSimulation is the registration-time check: any of username, platform id
// or credential carrying the prefix skips platform validation.
func (a *Account) IsSimulation() bool {
	return IsSimulationValue(a.Username) || IsSimulationValue(a.InstagramID) || IsSimulationValue(a.AccessToken)
}

// HasSimulationToken is the publish-time check.
func (a *Account) HasSimulationToken() bool {
	return IsSimulationValue(a.AccessToken)
}

// TokenHint returns a short credential prefix that is safe to log.
func (a *Account) TokenHint() string {
	if len(a.AccessToken) <= 6 {
		return "***"
	}
	return a.AccessToken[:6] + "***"
}
