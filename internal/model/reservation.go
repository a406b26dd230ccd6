package model

import "time"

// PendingStatus is the status value written into every pending
// reservation document. It never changes in place: a pending document
// is only ever deleted (reject) or consumed into a confirmed sale.
const PendingStatus = "PENDING_CONFIRMATION"

// PendingReservation is an unconfirmed claim on a set of cards created
// by a visitor when they submit payment proof. The cards remain blocked
// for other visitors until an admin approves or rejects the claim.
//
// Fields:
//  Cards       – card numbers covered by this claim.
//  Name        – visitor's full name.
//  Phone       – visitor's phone number, digits only.
//  Reference   – last digits of the payment reference.
//  ProofURL    – hosted URL of the uploaded payment proof.
//  TotalAmount – claimed total, card count times unit price.
//  Timestamp   – server time the claim was created.
//  Status      – always PENDING_CONFIRMATION.
type PendingReservation struct {
	Cards       []int     `json:"cards"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Reference   string    `json:"reference"`
	ProofURL    string    `json:"proofURL"`
	TotalAmount int       `json:"totalAmount"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
}

// ConfirmedSale is a finalized, admin-approved claim. It is created
// only by the confirmation resolver and is immutable afterwards except
// for full removal, which releases its cards.
type ConfirmedSale struct {
	Cards       []int     `json:"cards"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Reference   string    `json:"reference"`
	ProofURL    string    `json:"proofURL"`
	TotalAmount int       `json:"totalAmount"`
	SaleDate    time.Time `json:"saleDate"`
	ConfirmedBy string    `json:"confirmedBy"`
}

// Contact carries the visitor-supplied fields of a submission before
// they are baked into a PendingReservation.
type Contact struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Reference string `json:"reference"`
}
