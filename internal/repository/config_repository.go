package repository

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/store"
)

// generalConfigID is the fixed id of the single shop config document.
const generalConfigID = "general"

// ConfigRepo tracks the shop open/close flag. It keeps a live copy fed
// by the config collection's change stream, so IsOpen never hits the
// store on the hot path. A missing document means the shop is open.
type ConfigRepo struct {
	docs store.Store

	mu      sync.RWMutex
	current model.StoreConfig
}

// NewConfigRepo subscribes to the config collection and returns the
// repo. The subscription stays attached for the process lifetime.
func NewConfigRepo(docs store.Store) *ConfigRepo {
	r := &ConfigRepo{docs: docs, current: model.StoreConfig{IsStoreOpen: true}}
	docs.Subscribe(store.CollectionConfig, r.apply)
	return r
}

func (r *ConfigRepo) apply(changes []store.Change) {
	for _, ch := range changes {
		if ch.Doc.ID != generalConfigID {
			continue
		}
		if ch.Kind == store.Removed {
			r.mu.Lock()
			r.current = model.StoreConfig{IsStoreOpen: true}
			r.mu.Unlock()
			continue
		}
		var cfg model.StoreConfig
		if err := json.Unmarshal(ch.Doc.Data, &cfg); err != nil {
			log.Printf("config: bad config document: %v", err)
			continue
		}
		r.mu.Lock()
		r.current = cfg
		r.mu.Unlock()
	}
}

// IsOpen reports whether the shop currently accepts submissions.
func (r *ConfigRepo) IsOpen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.IsStoreOpen
}

// Current returns the live config document.
func (r *ConfigRepo) Current() model.StoreConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SetOpen flips the open/close flag on behalf of updatedBy. The store
// contract has no update-in-place, so the flag is replaced under its
// fixed id inside one batch.
func (r *ConfigRepo) SetOpen(ctx context.Context, open bool, updatedBy string) error {
	cfg := model.StoreConfig{
		IsStoreOpen: open,
		LastUpdated: time.Now().UTC(),
		UpdatedBy:   updatedBy,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return r.docs.RunBatch(ctx, []store.BatchOp{{
		Kind:       store.BatchInsert,
		Collection: store.CollectionConfig,
		ID:         generalConfigID,
		Data:       data,
	}})
}
