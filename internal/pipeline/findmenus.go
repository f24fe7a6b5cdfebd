package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/store"
)

const errNoMenu = "No menu found on website"

// FindMenus crawls the website of every pending restaurant without a menu
// URL. A found link is stored and the record stays pending for Extract. A
// crawl error counts as not found.
func (p *Pipeline) FindMenus(ctx context.Context) (*Report, error) {
	rows, err := p.store.ListRestaurants(ctx, store.RestaurantFilter{
		Status:     model.StatusPending,
		HasWebsite: store.Bool(true),
		HasMenuURL: store.Bool(false),
	})
	if err != nil {
		return nil, eris.Wrap(err, "find-menus: list restaurants")
	}
	zap.L().Info("find-menus: starting", zap.Int("restaurants", len(rows)))

	rep := &Report{}
	err = forEach(ctx, rep, p.cfg.Concurrency, newLimiter(p.cfg.FindMenusDelayMs), rows, p.findMenuOne)
	return rep, eris.Wrap(err, "find-menus: interrupted")
}

func (p *Pipeline) findMenuOne(ctx context.Context, r model.Restaurant) outcome {
	log := recordLogger(model.StageFindMenus, r)

	link, err := p.finder.Find(ctx, *r.Website)
	if err != nil {
		log.Warn("find-menus: crawl failed", zap.String("website", *r.Website), zap.Error(err))
		link = nil
	}

	if link == nil {
		if err := p.store.UpdateRestaurant(ctx, r.ID, store.RestaurantUpdate{MenuType: menuTypePtr(model.MenuTypeNone)}); err != nil {
			log.Error("find-menus: update restaurant", zap.Error(err))
		}
		p.markFailed(ctx, log, r.ID, model.StatusPending, errNoMenu)
		log.Info("find-menus: no menu found")
		return outcomeFailed
	}

	err = p.store.UpdateRestaurant(ctx, r.ID, store.RestaurantUpdate{
		MenuURL:  model.StrPtr(link.URL),
		MenuType: menuTypePtr(link.Type),
	})
	if err != nil {
		log.Error("find-menus: update restaurant", zap.Error(err))
		return outcomeFailed
	}
	log.Info("find-menus: menu found", zap.String("menu_type", string(link.Type)), zap.String("menu_url", link.URL))
	return outcomeSucceeded
}
