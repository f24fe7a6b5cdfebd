package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/store"
)

const errNoWebsite = "No website found"

// Enrich fetches place details for pending restaurants without a website,
// at most EnrichBatchSize per run. A restaurant with no website fails here;
// one with a website stays pending for FindMenus.
func (p *Pipeline) Enrich(ctx context.Context) (*Report, error) {
	rows, err := p.store.ListRestaurants(ctx, store.RestaurantFilter{
		Status:     model.StatusPending,
		HasWebsite: store.Bool(false),
		Limit:      p.cfg.EnrichBatchSize,
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: list restaurants")
	}
	zap.L().Info("enrich: starting", zap.Int("restaurants", len(rows)))

	rep := &Report{}
	err = forEach(ctx, rep, p.cfg.Concurrency, newLimiter(p.cfg.EnrichDelayMs), rows, p.enrichOne)
	return rep, eris.Wrap(err, "enrich: interrupted")
}

func (p *Pipeline) enrichOne(ctx context.Context, r model.Restaurant) outcome {
	log := recordLogger(model.StageEnrich, r)

	callCtx, cancel := context.WithTimeout(ctx, p.placesTimeout())
	defer cancel()
	details, err := p.places.GetPlaceDetails(callCtx, r.PlaceID)
	if err != nil {
		// Left pending; the next run retries it.
		log.Warn("enrich: place details failed", zap.Error(err))
		return outcomeSkipped
	}

	if details.Website == nil || *details.Website == "" {
		if err := p.store.UpdateRestaurant(ctx, r.ID, store.RestaurantUpdate{MenuType: menuTypePtr(model.MenuTypeNone)}); err != nil {
			log.Error("enrich: update restaurant", zap.Error(err))
		}
		p.markFailed(ctx, log, r.ID, model.StatusPending, errNoWebsite)
		log.Info("enrich: no website found")
		return outcomeFailed
	}

	err = p.store.UpdateRestaurant(ctx, r.ID, store.RestaurantUpdate{
		Website:              details.Website,
		Phone:                details.Phone,
		Summary:              details.Summary,
		PhotoURL:             details.PhotoURL,
		ReviewCount:          details.ReviewCount,
		ServesVegetarianFood: details.ServesVegetarianFood,
	})
	if err != nil {
		log.Error("enrich: update restaurant", zap.Error(err))
		return outcomeFailed
	}
	log.Info("enrich: website stored", zap.String("website", *details.Website))
	return outcomeSucceeded
}
