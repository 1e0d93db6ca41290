package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/ledgerlens/internal/mart"
	"github.com/dwsmith1983/ledgerlens/internal/provider"
	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

var sourceTables = []string{
	mart.RawOrders, mart.RawCustomers, mart.RawOrderItems, mart.RawProducts,
	mart.RawPayments, mart.RawSellers, mart.RawTranslations,
}

// LoadSources reads the raw tables. Each source key holds a JSON array of
// raw rows; a missing key is an empty table.
func (p *RedisProvider) LoadSources(ctx context.Context) (*types.RawSnapshot, error) {
	keys := make([]string, len(sourceTables))
	for i, t := range sourceTables {
		keys[i] = p.sourceKey(t)
	}
	vals, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	var snap types.RawSnapshot
	dsts := []any{
		&snap.Orders, &snap.Customers, &snap.OrderItems, &snap.Products,
		&snap.Payments, &snap.Sellers, &snap.Translations,
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(s), dsts[i]); err != nil {
			return nil, fmt.Errorf("decode %s: %w", sourceTables[i], err)
		}
	}
	return &snap, nil
}

// PutSources writes every raw table of snap, replacing what is stored.
func (p *RedisProvider) PutSources(ctx context.Context, snap *types.RawSnapshot) error {
	tables := []any{
		snap.Orders, snap.Customers, snap.OrderItems, snap.Products,
		snap.Payments, snap.Sellers, snap.Translations,
	}
	pipe := p.client.TxPipeline()
	for i, rows := range tables {
		data, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", sourceTables[i], err)
		}
		pipe.Set(ctx, p.sourceKey(sourceTables[i]), data, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Publish writes one new version per table, then flips every current
// pointer in a single MULTI/EXEC. Superseded versions expire shortly after
// so in-flight readers can finish.
func (p *RedisProvider) Publish(ctx context.Context, runID string, tables []mart.Table) error {
	if len(tables) == 0 {
		return nil
	}
	write := p.client.Pipeline()
	for _, t := range tables {
		schema, err := mart.Lookup(t.Name)
		if err != nil {
			return err
		}
		if schema.Kind == mart.KindSource {
			return fmt.Errorf("publish %s: source tables are read-only", t.Name)
		}
		data, err := schema.MarshalRecords(t.Rows)
		if err != nil {
			return err
		}
		write.Set(ctx, p.tableKey(t.Name, runID), data, 0)
	}
	if _, err := write.Exec(ctx); err != nil {
		return fmt.Errorf("write table versions: %w", err)
	}

	previous := make([]*goredis.StringCmd, len(tables))
	_, err := p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, t := range tables {
			previous[i] = pipe.GetSet(ctx, p.currentKey(t.Name), runID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("flip current versions: %w", err)
	}

	expire := p.client.Pipeline()
	stale := 0
	for i, t := range tables {
		old, err := previous[i].Result()
		if err != nil || old == "" || old == runID {
			continue
		}
		expire.Expire(ctx, p.tableKey(t.Name, old), supersededTTL)
		stale++
	}
	if stale > 0 {
		if _, err := expire.Exec(ctx); err != nil {
			p.logger.Warn("failed to expire superseded tables", "runId", runID, "error", err)
		}
	}
	return nil
}

// ReadTable returns the current version of a published table.
func (p *RedisProvider) ReadTable(ctx context.Context, name string) ([]map[string]any, error) {
	schema, err := mart.Lookup(name)
	if err != nil {
		return nil, err
	}
	if schema.Kind == mart.KindSource {
		return p.readSource(ctx, schema)
	}
	version, err := p.client.Get(ctx, p.currentKey(name)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("table %q: %w", name, provider.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	data, err := p.client.Get(ctx, p.tableKey(name, version)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("table %q version %s: %w", name, version, provider.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return schema.UnmarshalRecords(data)
}

func (p *RedisProvider) readSource(ctx context.Context, schema mart.Schema) ([]map[string]any, error) {
	data, err := p.client.Get(ctx, p.sourceKey(schema.Name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("table %q: %w", schema.Name, provider.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", schema.Name, err)
	}
	return schema.UnmarshalRecords(data)
}

// PutRun stores a run record and indexes it by start time.
func (p *RedisProvider) PutRun(ctx context.Context, run types.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.runKey(run.RunID), data, 0)
	pipe.ZAdd(ctx, p.runIndexKey(), goredis.Z{
		Score:  float64(run.StartedAt.UnixMilli()),
		Member: run.RunID,
	})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return err
	}
	return p.trimRuns(ctx)
}

// trimRuns drops the oldest runs beyond the configured limit.
func (p *RedisProvider) trimRuns(ctx context.Context) error {
	stale, err := p.client.ZRange(ctx, p.runIndexKey(), 0, int64(-(p.runLimit + 1))).Result()
	if err != nil || len(stale) == 0 {
		return err
	}
	keys := make([]string, len(stale))
	members := make([]any, len(stale))
	for i, id := range stale {
		keys[i] = p.runKey(id)
		members[i] = id
	}
	pipe := p.client.Pipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, p.runIndexKey(), members...)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRun retrieves a run record.
func (p *RedisProvider) GetRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	data, err := p.client.Get(ctx, p.runKey(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("run %q: %w", runID, provider.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var run types.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &run, nil
}

// ListRuns returns up to limit runs, newest first.
func (p *RedisProvider) ListRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := p.client.ZRevRange(ctx, p.runIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.runKey(id)
	}
	vals, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]types.RunRecord, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var run types.RunRecord
		if err := json.Unmarshal([]byte(s), &run); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
func (p *RedisProvider) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := p.client.SetNX(ctx, p.lockKey(key), "1", ttl).Result()
	return ok, err
}

// ReleaseLock releases a distributed lock.
func (p *RedisProvider) ReleaseLock(ctx context.Context, key string) error {
	return p.client.Del(ctx, p.lockKey(key)).Err()
}
