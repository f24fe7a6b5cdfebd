package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/geo"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/slug"
	"github.com/mealingabout/menu-pipeline/pkg/google"
)

// Discover searches every configured region for restaurants and upserts
// those passing the quality filter. Slugs come from one Allocator seeded
// with every stored slug, so a known place keeps its slug and two new
// places in the same run never collide.
func (p *Pipeline) Discover(ctx context.Context) (*Report, error) {
	existing, err := p.store.ListPlaceSlugs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "discover: load slugs")
	}
	alloc := slug.NewAllocator(existing)
	limiter := newLimiter(p.cfg.DiscoverDelayMs)
	seen := make(map[string]struct{})
	rep := &Report{}

	zap.L().Info("discover: starting",
		zap.Int("regions", len(p.regions)),
		zap.Int("known_places", len(existing)),
	)

	for _, region := range p.regions {
		if err := limiter.Wait(ctx); err != nil {
			return rep, eris.Wrap(err, "discover: throttle")
		}
		log := zap.L().With(zap.String("stage", string(model.StageDiscover)), zap.String("region", region.Name))

		places, err := p.searchRegion(ctx, region)
		if err != nil {
			log.Warn("discover: region search failed", zap.Error(err))
			continue
		}

		upserted := 0
		for _, place := range places {
			if _, dup := seen[place.ID]; dup {
				continue
			}
			seen[place.ID] = struct{}{}

			if !p.keep(place) {
				rep.record(outcomeSkipped)
				continue
			}
			if err := p.upsertPlace(ctx, alloc, region, place); err != nil {
				log.Warn("discover: upsert failed", zap.String("restaurant", place.Name), zap.Error(err))
				rep.record(outcomeFailed)
				continue
			}
			upserted++
			rep.record(outcomeSucceeded)
		}
		log.Info("discover: region complete",
			zap.Int("found", len(places)),
			zap.Int("upserted", upserted),
		)
	}
	zap.L().Info("discover: complete",
		zap.Int("unique_places", len(seen)),
		zap.Int("slugs_reserved", alloc.Len()),
	)
	return rep, nil
}

func (p *Pipeline) searchRegion(ctx context.Context, region geo.Region) ([]google.Place, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.placesTimeout())
	defer cancel()
	return p.places.SearchNearby(callCtx, google.NearbyRequest{
		Lat:     region.Lat,
		Lng:     region.Lng,
		RadiusM: region.RadiusM,
	})
}

// keep applies rating >= min AND reviews >= min AND not a chain. Missing
// rating or review count fails the filter.
func (p *Pipeline) keep(place google.Place) bool {
	if place.Rating == nil || *place.Rating < p.cfg.MinRating {
		return false
	}
	if place.ReviewCount == nil || *place.ReviewCount < p.cfg.MinReviews {
		return false
	}
	return !p.chains.isChain(place.Name)
}

// upsertPlace writes a discovered place. A new place is assigned the region
// whose center is nearest; the store never overwrites slug, neighborhood or
// status of an existing row.
func (p *Pipeline) upsertPlace(ctx context.Context, alloc *slug.Allocator, searched geo.Region, place google.Place) error {
	neighborhood := searched.Name
	if nearest, ok := geo.Nearest(p.regions, place.Lat, place.Lng); ok {
		neighborhood = nearest.Name
	}

	r := &model.Restaurant{
		PlaceID:        place.ID,
		Slug:           alloc.Assign(place.ID, place.Name, neighborhood),
		Name:           place.Name,
		Address:        place.Address,
		Neighborhood:   neighborhood,
		Lat:            place.Lat,
		Lng:            place.Lng,
		Rating:         place.Rating,
		ReviewCount:    place.ReviewCount,
		PriceLevel:     place.PriceLevel,
		PhotoURL:       place.PhotoURL,
		AnalysisStatus: model.StatusPending,
	}
	return p.store.UpsertRestaurant(ctx, r)
}
