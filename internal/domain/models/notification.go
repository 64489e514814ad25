// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TemplateKind selects which email template a notification renders.
type TemplateKind string

const (
	// TemplateAssignedSender tells a sender who they drew.
	TemplateAssignedSender TemplateKind = "assigned_sender"
	// TemplateAssignedRecipient tells a recipient that someone drew them,
	// without revealing who.
	TemplateAssignedRecipient TemplateKind = "assigned_recipient"
	// TemplateMailSent tells a recipient their gift is on the way.
	TemplateMailSent TemplateKind = "mail_sent"
	// TemplateMailReceived tells a sender their gift arrived.
	TemplateMailReceived TemplateKind = "mail_received"
)

// DispatchStatus is the delivery state of a notification dispatch.
type DispatchStatus string

const (
	DispatchPending DispatchStatus = "pending"
	DispatchSent    DispatchStatus = "sent"
	DispatchFailed  DispatchStatus = "failed"
)

// NotificationDispatch is one row of the outbound notification ledger.
//
// Key is deterministic per (assignment, kind, transition), so duplicate
// enqueues, including reconciliation re-enqueues after a crash, collapse
// onto the same ledger row instead of producing a second email.
type NotificationDispatch struct {
	ID  primitive.ObjectID `bson:"_id" json:"id"`
	Key string             `bson:"key" json:"key"`

	AssignmentID primitive.ObjectID `bson:"assignment_id" json:"assignment_id"`
	Kind         TemplateKind       `bson:"kind" json:"kind"`
	Recipient    string             `bson:"recipient" json:"recipient"`
	Note         string             `bson:"note,omitempty" json:"note,omitempty"`

	Status    DispatchStatus `bson:"status" json:"status"`
	Attempts  int            `bson:"attempts" json:"attempts"`
	LastError string         `bson:"last_error,omitempty" json:"last_error,omitempty"`

	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
	NextAttemptAt *time.Time `bson:"next_attempt_at,omitempty" json:"next_attempt_at,omitempty"`
}
