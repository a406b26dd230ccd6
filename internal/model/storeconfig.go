package model

import "time"

// StoreConfig is the single configuration document admins toggle to
// open or close the shop. While closed, visitor submissions are
// refused; selection browsing stays available.
type StoreConfig struct {
	IsStoreOpen bool      `json:"isStoreOpen"`
	LastUpdated time.Time `json:"lastUpdated"`
	UpdatedBy   string    `json:"updatedBy"`
}
