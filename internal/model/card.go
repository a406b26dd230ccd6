package model

// Status describes a card's shared state as derived from the confirmed-sale
// and pending-reservation collections. The three values partition the card
// range completely: a card with no entry in the live cache is available.
//
// "selected" is deliberately absent. Selection is an overlay local to one
// visitor's session and is never written to shared state.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
)

// CardInRange reports whether a card number falls inside [1, total].
func CardInRange(card, total int) bool {
	return card >= 1 && card <= total
}
