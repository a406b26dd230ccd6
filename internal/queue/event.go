// Package queue defines message payloads exchanged over the message broker.
package queue

// SaleConfirmedEvent is published when an admin confirms a pending
// reservation. It carries enough information for downstream consumers
// to log or notify without querying the document store.
type SaleConfirmedEvent struct {
	SaleID        string `json:"sale_id"`
	ReservationID string `json:"reservation_id"`
	Cards         []int  `json:"cards"`
	Conflicts     []int  `json:"conflicts,omitempty"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	TotalAmount   int    `json:"total_amount"`
	ConfirmedBy   string `json:"confirmed_by"`
	ConfirmedAt   string `json:"confirmed_at"`
}
