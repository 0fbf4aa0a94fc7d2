// Package timezone maps free-text locations to UTC offsets.
package timezone

import (
	"context"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	geo "github.com/codingsince1985/geo-golang"
	"github.com/codingsince1985/geo-golang/openstreetmap"
	"github.com/pkg/errors"
	"github.com/ringsaturn/tzf"

	appErrors "github.com/unclebandit/outreach-scheduler/internal/errors"
	"github.com/unclebandit/outreach-scheduler/internal/logger"
)

// FallbackOffset is used for every location that cannot be resolved.
// Such recipients are scheduled as if they were in UTC.
const FallbackOffset = 0.0

// Geocoder turns an address into coordinates. geo.Geocoder implementations satisfy it.
type Geocoder interface {
	Geocode(address string) (*geo.Location, error)
}

// ZoneFinder maps coordinates to an IANA zone name, "" when unknown.
type ZoneFinder interface {
	GetTimezoneName(lng float64, lat float64) string
}

// Resolver runs geocode → zone name → offset at now.
type Resolver struct {
	Geocoder    Geocoder
	Finder      ZoneFinder
	Cache       ZoneCache
	MinInterval time.Duration // between geocoder calls
	Now         func() time.Time

	mu       sync.Mutex
	lastCall time.Time
}

// NewDefault resolves through the OpenStreetMap geocoder and the bundled tzf polygons.
func NewDefault(cache ZoneCache, minInterval time.Duration) (*Resolver, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load timezone polygons")
	}
	return &Resolver{
		Geocoder:    openstreetmap.Geocoder(),
		Finder:      finder,
		Cache:       cache,
		MinInterval: minInterval,
	}, nil
}

// Offset returns the UTC offset in hours for the first candidate that resolves.
// It never fails; unresolvable input yields FallbackOffset.
func (r *Resolver) Offset(ctx context.Context, candidates ...string) float64 {
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		zone, err := r.Zone(ctx, c)
		if err != nil {
			logger.FromContext(ctx).Debug("location not resolved", "location", c, "error", err)
			continue
		}
		offset, err := OffsetAt(zone, r.now())
		if err != nil {
			logger.FromContext(ctx).Warn("unknown timezone", "zone", zone, "error", err)
			continue
		}
		return offset
	}
	return FallbackOffset
}

// Zone resolves location to a zone name, consulting the cache first.
func (r *Resolver) Zone(ctx context.Context, location string) (string, error) {
	key := normalize(location)
	if key == "" {
		return "", &appErrors.ResolutionError{Location: location, Err: errors.New("empty location")}
	}

	if r.Cache != nil {
		zone, ok, err := r.Cache.Get(ctx, key)
		if err != nil {
			logger.FromContext(ctx).Warn("timezone cache read failed", "error", err)
		} else if ok {
			if zone == "" {
				return "", &appErrors.ResolutionError{Location: location, Err: errors.New("cached miss")}
			}
			return zone, nil
		}
	}

	zone, err := r.lookup(ctx, location)
	if r.Cache != nil && (err == nil || errors.Is(err, errNotFound)) {
		// misses are cached too so they are not geocoded again
		if cerr := r.Cache.Set(ctx, key, zone); cerr != nil {
			logger.FromContext(ctx).Warn("timezone cache write failed", "error", cerr)
		}
	}
	if err != nil {
		return "", &appErrors.ResolutionError{Location: location, Err: err}
	}
	return zone, nil
}

var errNotFound = errors.New("location not found")

func (r *Resolver) lookup(ctx context.Context, location string) (string, error) {
	if err := r.throttle(ctx); err != nil {
		return "", err
	}

	loc, err := r.Geocoder.Geocode(location)
	if err != nil {
		return "", errors.Wrap(err, "geocode")
	}
	if loc == nil {
		return "", errNotFound
	}

	zone := r.Finder.GetTimezoneName(loc.Lng, loc.Lat)
	if zone == "" {
		return "", errNotFound
	}
	return zone, nil
}

func (r *Resolver) throttle(ctx context.Context) error {
	if r.MinInterval <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	wait := r.MinInterval - time.Since(r.lastCall)
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	r.lastCall = time.Now()
	return nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// OffsetAt returns the offset of zone from UTC at instant at, in hours.
func OffsetAt(zone string, at time.Time) (float64, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return 0, errors.Wrapf(err, "load location %q", zone)
	}
	_, seconds := at.In(loc).Zone()
	return float64(seconds) / 3600, nil
}

// JoinLocation builds "city, state, country" from the non-empty parts.
func JoinLocation(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func normalize(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}
