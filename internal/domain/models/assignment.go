// internal/domain/models/assignment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssignmentState is the lifecycle state of an assignment.
//
// States are monotonic: assigned → sent → received. A recipient may
// confirm receipt before the sender marks the parcel sent, so "sent" can
// be skipped; "received" is terminal either way.
type AssignmentState string

const (
	StateAssigned AssignmentState = "assigned"
	StateSent     AssignmentState = "sent"
	StateReceived AssignmentState = "received"
)

// IsValidAssignmentState checks if a value is a known lifecycle state.
func IsValidAssignmentState(v string) bool {
	switch AssignmentState(v) {
	case StateAssigned, StateSent, StateReceived:
		return true
	}
	return false
}

// Assignment records that one participant sends a gift to another within
// an exchange. Every participant in a drawn exchange appears exactly once
// as sender and exactly once as recipient, and never as both ends of the
// same assignment.
type Assignment struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	ExchangeID primitive.ObjectID `bson:"exchange_id" json:"exchange_id"`

	SenderID    primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	SenderUser  primitive.ObjectID `bson:"sender_user_id" json:"sender_user_id"`
	SenderName  string             `bson:"sender_name" json:"sender_name"`
	SenderEmail string             `bson:"sender_email" json:"sender_email"`

	RecipientID    primitive.ObjectID `bson:"recipient_id" json:"recipient_id"`
	RecipientUser  primitive.ObjectID `bson:"recipient_user_id" json:"recipient_user_id"`
	RecipientName  string             `bson:"recipient_name" json:"recipient_name"`
	RecipientEmail string             `bson:"recipient_email" json:"recipient_email"`

	State AssignmentState `bson:"state" json:"state"`

	SenderNote    string `bson:"sender_note,omitempty" json:"sender_note,omitempty"`
	RecipientNote string `bson:"recipient_note,omitempty" json:"recipient_note,omitempty"`

	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	SentAt     *time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	ReceivedAt *time.Time `bson:"received_at,omitempty" json:"received_at,omitempty"`
}
