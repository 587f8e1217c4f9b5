// README: Location store backed by Redis (latest fix + GEO set) and Postgres snapshots.
package location

import (
    "context"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/redis/go-redis/v9"

    "dropoff/internal/types"
)

const (
    driverGeoKey       = "location:drivers"
    driverLatestKeyFmt = "location:driver:%s"
    // Positions older than this are treated as unknown.
    latestTTL = 15 * time.Minute
)

type Store struct {
    db    *pgxpool.Pool
    redis *redis.Client
}

// NewStore accepts a nil db; snapshots are then skipped.
func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
    return &Store{db: db, redis: redis}
}

func latestKey(id types.ID) string {
    return fmt.Sprintf(driverLatestKeyFmt, string(id))
}

func (s *Store) SetLatest(ctx context.Context, id types.ID, p GeoPoint) error {
    fields := map[string]any{
        "lat": strconv.FormatFloat(p.Lat, 'f', -1, 64),
        "lng": strconv.FormatFloat(p.Lng, 'f', -1, 64),
        "acc": strconv.FormatFloat(p.Accuracy, 'f', -1, 64),
        "ts":  p.Timestamp.UnixMilli(),
    }
    if p.Speed != nil {
        fields["speed"] = strconv.FormatFloat(*p.Speed, 'f', -1, 64)
    }
    if p.Heading != nil {
        fields["heading"] = strconv.FormatFloat(*p.Heading, 'f', -1, 64)
    }

    key := latestKey(id)
    pipe := s.redis.TxPipeline()
    pipe.Del(ctx, key)
    pipe.HSet(ctx, key, fields)
    pipe.Expire(ctx, key, latestTTL)
    pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
        Name:      string(id),
        Longitude: p.Lng,
        Latitude:  p.Lat,
    })
    _, err := pipe.Exec(ctx)
    return err
}

func (s *Store) Latest(ctx context.Context, id types.ID) (GeoPoint, error) {
    vals, err := s.redis.HGetAll(ctx, latestKey(id)).Result()
    if err != nil {
        return GeoPoint{}, err
    }
    if len(vals) == 0 {
        return GeoPoint{}, ErrNoPosition
    }
    return parseLatest(vals)
}

func (s *Store) Remove(ctx context.Context, id types.ID) error {
    pipe := s.redis.TxPipeline()
    pipe.Del(ctx, latestKey(id))
    pipe.ZRem(ctx, driverGeoKey, string(id))
    _, err := pipe.Exec(ctx)
    return err
}

func parseLatest(vals map[string]string) (GeoPoint, error) {
    var p GeoPoint
    var err error
    if p.Lat, err = strconv.ParseFloat(vals["lat"], 64); err != nil {
        return GeoPoint{}, fmt.Errorf("parse lat: %w", err)
    }
    if p.Lng, err = strconv.ParseFloat(vals["lng"], 64); err != nil {
        return GeoPoint{}, fmt.Errorf("parse lng: %w", err)
    }
    if p.Accuracy, err = strconv.ParseFloat(vals["acc"], 64); err != nil {
        return GeoPoint{}, fmt.Errorf("parse accuracy: %w", err)
    }
    ts, err := strconv.ParseInt(vals["ts"], 10, 64)
    if err != nil {
        return GeoPoint{}, fmt.Errorf("parse ts: %w", err)
    }
    p.Timestamp = time.UnixMilli(ts).UTC()
    if v, ok := vals["speed"]; ok {
        if f, err := strconv.ParseFloat(v, 64); err == nil {
            p.Speed = &f
        }
    }
    if v, ok := vals["heading"]; ok {
        if f, err := strconv.ParseFloat(v, 64); err == nil {
            p.Heading = &f
        }
    }
    return p, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
    if s.db == nil {
        return errors.New("snapshot store not configured")
    }
    _, err := s.db.Exec(ctx, `
        INSERT INTO driver_location_snapshots (
            driver_id, lat, lng, accuracy_m, speed_mps, heading_deg, recorded_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
        string(snap.DriverID),
        snap.Position.Lat,
        snap.Position.Lng,
        snap.Position.Accuracy,
        snap.Position.Speed,
        snap.Position.Heading,
        snap.RecordedAt,
    )
    return err
}

func (s *Store) HasSnapshots() bool {
    return s.db != nil
}
