package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/weft-testbed/weft/pkg/util"
)

// RedisStore keeps slice records in Redis under
// weft:slice:<project>:<name>, one JSON value per slice. Meant for hub
// machines where several processes share slice state.
type RedisStore struct {
	client  *redis.Client
	project string
}

// NewRedisStore connects a store for the given project's slices. An empty
// project is legal and keys under weft:slice::<name>.
func NewRedisStore(addr, password string, db int, project string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		project: project,
	}
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("weft:slice:%s:%s", s.project, name)
}

// Save writes the record. Records have no TTL: slices outlive any client
// process and deletion is explicit.
func (s *RedisStore) Save(ctx context.Context, rec *SliceRecord) error {
	if rec.Name() == "" {
		return fmt.Errorf("slice record has no name")
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal slice record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.Name()), data, 0).Err(); err != nil {
		return fmt.Errorf("write slice record: %w", err)
	}
	return nil
}

// Load reads the record for a slice name.
func (s *RedisStore) Load(ctx context.Context, name string) (*SliceRecord, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("slice '%s': %w", name, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read slice record: %w", err)
	}
	var rec SliceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse slice record %s: %w", s.key(name), err)
	}
	return &rec, nil
}

// Delete removes the record. Deleting a record that does not exist is not
// an error.
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("delete slice record: %w", err)
	}
	return nil
}

// List returns every record under the store's project, sorted by slice
// name. Unparsable values are skipped.
func (s *RedisStore) List(ctx context.Context) ([]*SliceRecord, error) {
	var out []*SliceRecord
	iter := s.client.Scan(ctx, 0, s.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // deleted between scan and get
		}
		var rec SliceRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			util.Warnf("skipping unreadable slice record %s: %v", iter.Val(), err)
			continue
		}
		out = append(out, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list slice records: %w", err)
	}
	sortRecords(out)
	return out, nil
}

var _ Store = (*RedisStore)(nil)
