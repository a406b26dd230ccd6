// Package repository provides typed read access to the document
// collections for handlers: decoded pending reservations, confirmed
// sales and the shop config flag. Writes that carry protocol meaning
// (submission, confirmation, rejection) live in the session and
// resolver packages; this layer only decodes and aggregates.
package repository

import "errors"

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")
