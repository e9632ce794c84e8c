package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// DefaultBucket is the KV bucket name for enhancement records.
const DefaultBucket = "DOCENGINE_ENHANCEMENTS"

// kvRecord is the stored KV value. The fingerprint rides inside the record
// so a mismatch can be detected without a second lookup.
type kvRecord struct {
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NATSKVStore implements Store on a NATS JetStream key-value bucket, for
// deployments where runs share a cache across hosts.
type NATSKVStore struct {
	kv jetstream.KeyValue
}

// NewNATSKVStore creates a Store over the given JetStream context, creating
// the bucket if it does not exist.
func NewNATSKVStore(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSKVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		// Bucket doesn't exist, create it
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Enhancement phase results keyed by unit and phase",
			History:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("create cache bucket: %w", err)
		}
	}
	return &NATSKVStore{kv: kv}, nil
}

func kvKey(unitID string, phase Phase) string {
	return fmt.Sprintf("%s.%s", unitID, phase)
}

// Get returns the stored payload when the fingerprint matches.
func (s *NATSKVStore) Get(ctx context.Context, unitID string, phase Phase, fingerprint string) ([]byte, bool, error) {
	entry, err := s.kv.Get(ctx, kvKey(unitID, phase))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	var rec kvRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, false, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	if rec.Fingerprint != fingerprint {
		return nil, false, nil
	}
	return rec.Payload, true, nil
}

// Put stores the record for (unitID, phase).
func (s *NATSKVStore) Put(ctx context.Context, unitID string, phase Phase, fingerprint string, payload []byte) error {
	data, err := json.Marshal(kvRecord{
		Fingerprint: fingerprint,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if _, err := s.kv.Put(ctx, kvKey(unitID, phase), data); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Stats reports the number of stored records.
func (s *NATSKVStore) Stats(ctx context.Context) (Stats, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list cache keys: %w", err)
	}
	n := 0
	for range lister.Keys() {
		n++
	}
	return Stats{Entries: n}, nil
}

// Clear removes all records.
func (s *NATSKVStore) Clear(ctx context.Context) error {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	for key := range lister.Keys() {
		if err := s.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("delete cache key %s: %w", key, err)
		}
	}
	return nil
}

// Close is a no-op; the NATS connection is owned by the caller.
func (s *NATSKVStore) Close() error {
	return nil
}
