// internal/domain/models/participant.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Participant is one user's enrollment in one exchange.
//
// Enrollment is unique per (exchange_id, user_id); the participants store
// enforces that with a unique index. Only confirmed participants enter a
// draw; users who joined but never confirmed are left out of the pool.
type Participant struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	ExchangeID primitive.ObjectID `bson:"exchange_id" json:"exchange_id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`

	// Email and FullName are denormalized from the account system so draw
	// notifications can be addressed without a user lookup.
	Email    string `bson:"email" json:"email"`
	FullName string `bson:"full_name" json:"full_name"`

	Confirmed  bool      `bson:"confirmed" json:"confirmed"`
	EnrolledAt time.Time `bson:"enrolled_at" json:"enrolled_at"`
}
