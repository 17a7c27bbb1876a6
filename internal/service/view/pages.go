package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oceanmonitor/dashboard/internal/model/ocean"
)

// ErrUnsuccessful reports an envelope with success=false.
var ErrUnsuccessful = errors.New("upstream reported failure")

// Source is the slice of the upstream API the data pages read.
type Source interface {
	FishStatistics(ctx context.Context) (*ocean.Envelope[ocean.FishStatistics], error)
	OnlineMarket(ctx context.Context) (*ocean.Envelope[ocean.MarketData], error)
	Weather(ctx context.Context) (*ocean.Envelope[ocean.Forecast], error)
	AirQuality(ctx context.Context) (*ocean.Envelope[ocean.Forecast], error)
	WaterQuality(ctx context.Context, filter ocean.WaterQualityFilter) (*ocean.Envelope[[]ocean.WaterQualityRecord], error)
	WaterQualityPeriods(ctx context.Context) (*ocean.Envelope[[]ocean.Period], error)
	Provinces(ctx context.Context) (*ocean.Envelope[[]string], error)
	Basins(ctx context.Context, province string) (*ocean.Envelope[[]string], error)
	WaterQualityStats(ctx context.Context, year, month string) (*ocean.Envelope[ocean.WaterQualityStats], error)
}

// FishStatistics loads the fish analysis page.
func FishStatistics(src Source) FetchFunc[ocean.FishStatistics] {
	return func(ctx context.Context) (ocean.FishStatistics, error) {
		resp, err := src.FishStatistics(ctx)
		if err != nil {
			return ocean.FishStatistics{}, err
		}
		return resp.Data, nil
	}
}

// Market loads the market price table; a missing list renders empty.
func Market(src Source) FetchFunc[[]ocean.MarketItem] {
	return func(ctx context.Context) ([]ocean.MarketItem, error) {
		resp, err := src.OnlineMarket(ctx)
		if err != nil {
			return nil, err
		}
		if !resp.Success || resp.Data.List == nil {
			return []ocean.MarketItem{}, nil
		}
		return resp.Data.List, nil
	}
}

// Weather loads the temperature and humidity chart points.
func Weather(src Source) FetchFunc[[]ocean.WeatherPoint] {
	return func(ctx context.Context) ([]ocean.WeatherPoint, error) {
		resp, err := src.Weather(ctx)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return []ocean.WeatherPoint{}, nil
		}
		return resp.Data.Hourly.WeatherPoints(), nil
	}
}

// AirQuality loads the pollutant chart points.
func AirQuality(src Source) FetchFunc[[]ocean.AirQualityPoint] {
	return func(ctx context.Context) ([]ocean.AirQualityPoint, error) {
		resp, err := src.AirQuality(ctx)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return []ocean.AirQualityPoint{}, nil
		}
		return resp.Data.Hourly.AirQualityPoints(), nil
	}
}

// WaterQualityPage is everything the water quality page renders at once.
type WaterQualityPage struct {
	Filter    ocean.WaterQualityFilter   `json:"filter"`
	Records   []ocean.WaterQualityRecord `json:"records"`
	Stats     ocean.WaterQualityStats    `json:"stats"`
	Periods   []ocean.Period             `json:"periods"`
	Provinces []string                   `json:"provinces"`
	Basins    []string                   `json:"basins"`
}

// WaterQuality loads the water quality page for filter, issuing its five
// requests concurrently. The first failure fails the page.
func WaterQuality(src Source, filter ocean.WaterQualityFilter) FetchFunc[WaterQualityPage] {
	return func(ctx context.Context) (WaterQualityPage, error) {
		page := WaterQualityPage{Filter: filter}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			firstErr error
		)
		run := func(fn func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}()
		}

		run(func() error {
			resp, err := src.WaterQuality(ctx, filter)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Error)
			}
			page.Records = resp.Data
			return nil
		})
		run(func() error {
			resp, err := src.WaterQualityStats(ctx, filter.Year, filter.Month)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Error)
			}
			page.Stats = resp.Data
			return nil
		})
		run(func() error {
			resp, err := src.WaterQualityPeriods(ctx)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Error)
			}
			page.Periods = resp.Data
			return nil
		})
		run(func() error {
			resp, err := src.Provinces(ctx)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Error)
			}
			page.Provinces = resp.Data
			return nil
		})
		run(func() error {
			resp, err := src.Basins(ctx, filter.Province)
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", ErrUnsuccessful, resp.Error)
			}
			page.Basins = resp.Data
			return nil
		})

		wg.Wait()
		if firstErr != nil {
			return WaterQualityPage{}, firstErr
		}
		return page, nil
	}
}
