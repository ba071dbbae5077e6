package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

const (
	onlineKey = "drivers:online"
	// candidates fetched per requested one, to survive eligibility filtering
	oversample = 3
)

// EligibilityChecker confirms that drivers may receive an offer right now
type EligibilityChecker interface {
	Eligible(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// GeoIndex keeps the last known position of online drivers in a Redis GEO set,
// with a metadata hash per driver holding the sample time.
type GeoIndex struct {
	rdb      *goredis.Client
	eligible EligibilityChecker
}

func NewGeoIndex(rdb *goredis.Client, eligible EligibilityChecker) *GeoIndex {
	return &GeoIndex{rdb: rdb, eligible: eligible}
}

func memberName(driverID int64) string {
	return "driver:" + strconv.FormatInt(driverID, 10)
}

func metaKey(driverID int64) string {
	return "driver:meta:" + strconv.FormatInt(driverID, 10)
}

func parseMember(member string) (int64, error) {
	raw, ok := strings.CutPrefix(member, "driver:")
	if !ok {
		return 0, fmt.Errorf("invalid member %q", member)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// upsertScript writes the position only when the sample is not older than the
// stored one. KEYS: geo set, meta hash. ARGV: lon, lat, member, unix micros, rfc3339 time.
var upsertScript = goredis.NewScript(`
local prev = redis.call('HGET', KEYS[2], 'ts')
if prev and tonumber(prev) > tonumber(ARGV[4]) then
	return 0
end
redis.call('GEOADD', KEYS[1], ARGV[1], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[2], 'updated', ARGV[5], 'ts', ARGV[4])
return 1
`)

// Upsert records the sample as the driver's current position unless a newer
// sample is already stored.
func (g *GeoIndex) Upsert(ctx context.Context, s models.LocationSample) error {
	const op = "GeoIndex.Upsert"

	if !s.Point.Valid() {
		return types.ErrInvalidCoordinates
	}
	recordedAt := s.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	recordedAt = recordedAt.UTC()

	err := upsertScript.Run(ctx, g.rdb,
		[]string{onlineKey, metaKey(s.DriverID)},
		s.Point.Lon, s.Point.Lat, memberName(s.DriverID),
		recordedAt.UnixMicro(), recordedAt.Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		ctx = wrap.WithAction(wrap.WithDriverID(ctx, s.DriverID), types.ActionGeoIndexFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// Remove drops the driver from the index
func (g *GeoIndex) Remove(ctx context.Context, driverID int64) error {
	const op = "GeoIndex.Remove"

	_, err := g.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.ZRem(ctx, onlineKey, memberName(driverID))
		p.Del(ctx, metaKey(driverID))
		return nil
	})
	if err != nil {
		ctx = wrap.WithAction(wrap.WithDriverID(ctx, driverID), types.ActionGeoIndexFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// FindNearby answers the nearby query from the index. Members older than
// FreshSince are dropped, then eligibility is confirmed against the store.
func (g *GeoIndex) FindNearby(ctx context.Context, nq models.NearbyQuery) ([]models.Candidate, error) {
	const op = "GeoIndex.FindNearby"

	res, err := g.rdb.GeoSearchLocation(ctx, onlineKey, &goredis.GeoSearchLocationQuery{
		GeoSearchQuery: goredis.GeoSearchQuery{
			Longitude:  nq.Point.Lon,
			Latitude:   nq.Point.Lat,
			Radius:     nq.RadiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      nq.Limit * oversample,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []models.Candidate{}, nil
		}
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if len(res) == 0 {
		return []models.Candidate{}, nil
	}

	found := make([]models.Candidate, 0, len(res))
	cmds := make([]*goredis.StringCmd, 0, len(res))
	_, err = g.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, loc := range res {
			id, err := parseMember(loc.Name)
			if err != nil {
				continue
			}
			found = append(found, models.Candidate{
				DriverID:       id,
				Point:          models.Point{Lat: loc.Latitude, Lon: loc.Longitude},
				DistanceMeters: loc.Dist,
			})
			cmds = append(cmds, p.HGet(ctx, metaKey(id), "updated"))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: metadata: %w", op, err))
	}

	for i := range found {
		found[i].RecordedAt = parseUpdated(cmds[i])
	}
	found = filterFresh(found, nq.FreshSince)

	ids := make([]int64, len(found))
	for i, c := range found {
		ids[i] = c.DriverID
	}
	ok, err := g.eligible.Eligible(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return keepEligible(found, ok, nq.Limit), nil
}

func parseUpdated(cmd *goredis.StringCmd) time.Time {
	raw, err := cmd.Result()
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// filterFresh drops candidates whose sample time is unknown or older than since
func filterFresh(cs []models.Candidate, since *time.Time) []models.Candidate {
	if since == nil {
		return cs
	}
	out := cs[:0]
	for _, c := range cs {
		if !c.RecordedAt.IsZero() && !c.RecordedAt.Before(*since) {
			out = append(out, c)
		}
	}
	return out
}

// keepEligible preserves distance order and truncates to limit
func keepEligible(cs []models.Candidate, ok map[int64]bool, limit int) []models.Candidate {
	out := make([]models.Candidate, 0, min(len(cs), limit))
	for _, c := range cs {
		if len(out) == limit {
			break
		}
		if ok[c.DriverID] {
			out = append(out, c)
		}
	}
	return out
}
