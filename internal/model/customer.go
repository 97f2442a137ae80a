package model

import "time"

// VerificationStatus tracks the customer's identity document review.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// Customer is keyed by the stable contact address of the messaging
// channel.  A row is created on first contact.
//
// Fields:
//  ID           – primary key identifier.
//  ContactID    – phone-like channel address (unique).
//  Name         – display name, may be empty until profile completion.
//  Email        – optional email.
//  DocumentRef  – reference to the last uploaded identity document.
//  Verification – document review status.
type Customer struct {
	ID           uint64             // customers.id
	ContactID    string             // customers.contact_id
	Name         string             // customers.name
	Email        string             // customers.email
	DocumentRef  string             // customers.document_ref
	Verification VerificationStatus // customers.verification
	CreatedAt    time.Time          // customers.created_at
	UpdatedAt    time.Time          // customers.updated_at
}
