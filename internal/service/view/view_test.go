package view_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanmonitor/dashboard/internal/client"
	"github.com/oceanmonitor/dashboard/internal/model/ocean"
	"github.com/oceanmonitor/dashboard/internal/service/view"
)

func TestLoadApplies(t *testing.T) {
	v := view.New(func(context.Context) (int, error) { return 42, nil })

	snap, err := v.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, view.StateLoaded, snap.State)
	assert.Equal(t, 42, v.Snapshot().Data)
	assert.False(t, snap.LoadedAt.IsZero())
}

func TestLoadFailureResetsData(t *testing.T) {
	fail := false
	v := view.New(func(context.Context) ([]string, error) {
		if fail {
			return nil, &client.Error{Message: client.MsgOnlineMarket}
		}
		return []string{"白菜"}, nil
	})

	_, err := v.Load(context.Background())
	require.NoError(t, err)

	fail = true
	snap, err := v.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, view.StateFailed, snap.State)
	assert.Nil(t, snap.Data)
	assert.Equal(t, "获取在线市场数据失败", snap.Error)
}

func TestCloseDropsLateResponse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	v := view.New(func(ctx context.Context) (string, error) {
		close(started)
		<-release
		return "stale", nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := v.Load(context.Background())
		errCh <- err
	}()
	<-started

	v.Close()
	close(release)

	require.ErrorIs(t, <-errCh, view.ErrSuperseded)
	snap := v.Snapshot()
	assert.Equal(t, view.StateIdle, snap.State)
	assert.Empty(t, snap.Data)
}

func TestCloseCancelsInFlightFetch(t *testing.T) {
	started := make(chan struct{})
	v := view.New(func(ctx context.Context) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := v.Load(context.Background())
		errCh <- err
	}()
	<-started
	v.Close()

	require.ErrorIs(t, <-errCh, view.ErrSuperseded)
}

func TestNewerLoadSupersedesOlder(t *testing.T) {
	first := make(chan struct{})
	calls := 0
	v := view.New(func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			close(first)
			<-ctx.Done()
			return 1, nil
		}
		return 2, nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := v.Load(context.Background())
		errCh <- err
	}()
	<-first

	snap, err := v.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Data)

	require.ErrorIs(t, <-errCh, view.ErrSuperseded)
	assert.Equal(t, 2, v.Snapshot().Data)
}

type fakeSource struct {
	market        *ocean.Envelope[ocean.MarketData]
	weather       *ocean.Envelope[ocean.Forecast]
	waterOK       bool
	provincesDown bool
	basinIn       string
}

func (f *fakeSource) FishStatistics(context.Context) (*ocean.Envelope[ocean.FishStatistics], error) {
	return &ocean.Envelope[ocean.FishStatistics]{Success: true, Data: ocean.FishStatistics{SpeciesCount: map[string]float64{"Bream": 35}}}, nil
}

func (f *fakeSource) OnlineMarket(context.Context) (*ocean.Envelope[ocean.MarketData], error) {
	return f.market, nil
}

func (f *fakeSource) Weather(context.Context) (*ocean.Envelope[ocean.Forecast], error) {
	return f.weather, nil
}

func (f *fakeSource) AirQuality(context.Context) (*ocean.Envelope[ocean.Forecast], error) {
	return nil, &client.Error{Message: client.MsgAirQuality, Err: errors.New("timeout")}
}

func (f *fakeSource) WaterQuality(context.Context, ocean.WaterQualityFilter) (*ocean.Envelope[[]ocean.WaterQualityRecord], error) {
	if !f.waterOK {
		return &ocean.Envelope[[]ocean.WaterQualityRecord]{Success: false, Error: "Table '2019-01' doesn't exist"}, nil
	}
	return &ocean.Envelope[[]ocean.WaterQualityRecord]{Success: true, Data: []ocean.WaterQualityRecord{{"pH": 7.2}}}, nil
}

func (f *fakeSource) WaterQualityPeriods(context.Context) (*ocean.Envelope[[]ocean.Period], error) {
	return &ocean.Envelope[[]ocean.Period]{Success: true, Data: []ocean.Period{{Year: 2020, Month: 5}}}, nil
}

func (f *fakeSource) Provinces(context.Context) (*ocean.Envelope[[]string], error) {
	if f.provincesDown {
		return &ocean.Envelope[[]string]{Success: false, Error: "province table missing"}, nil
	}
	return &ocean.Envelope[[]string]{Success: true, Data: []string{"浙江"}}, nil
}

func (f *fakeSource) Basins(_ context.Context, province string) (*ocean.Envelope[[]string], error) {
	f.basinIn = province
	return &ocean.Envelope[[]string]{Success: true, Data: []string{"钱塘江"}}, nil
}

func (f *fakeSource) WaterQualityStats(context.Context, string, string) (*ocean.Envelope[ocean.WaterQualityStats], error) {
	return &ocean.Envelope[ocean.WaterQualityStats]{Success: true, Data: ocean.WaterQualityStats{Categories: []ocean.CategoryCount{{Category: "II", Count: 3}}}}, nil
}

func ptr(v float64) *float64 { return &v }

func TestWeatherPointsAlignByIndex(t *testing.T) {
	src := &fakeSource{weather: &ocean.Envelope[ocean.Forecast]{Success: true, Data: ocean.Forecast{Hourly: ocean.Hourly{
		Time:               []string{"2025-04-01T00:00", "2025-04-01T01:00"},
		Temperature2m:      []*float64{ptr(8.5), ptr(8.1)},
		RelativeHumidity2m: []*float64{ptr(71)},
	}}}}

	points, err := view.Weather(src)(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "00:00", points[0].Time)
	assert.Equal(t, 8.1, *points[1].Temperature)
	assert.Nil(t, points[1].Humidity)
}

func TestMarketWithoutListIsEmpty(t *testing.T) {
	src := &fakeSource{market: &ocean.Envelope[ocean.MarketData]{Success: true}}

	items, err := view.Market(src)(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestAirQualityFailureSurfacesResourceMessage(t *testing.T) {
	v := view.New(view.AirQuality(&fakeSource{}))

	snap, err := v.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "获取空气质量数据失败", snap.Error)
}

func TestWaterQualityPage(t *testing.T) {
	src := &fakeSource{waterOK: true}
	filter := ocean.WaterQualityFilter{Year: "2020", Month: "05", Province: "浙江"}

	page, err := view.WaterQuality(src, filter)(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.Equal(t, []string{"钱塘江"}, page.Basins)
	assert.Equal(t, "浙江", src.basinIn)
	assert.Equal(t, 3, page.Stats.Categories[0].Count)
}

func TestWaterQualityPageUnsuccessful(t *testing.T) {
	_, err := view.WaterQuality(&fakeSource{}, ocean.WaterQualityFilter{Year: "2019", Month: "01"})(context.Background())
	require.ErrorIs(t, err, view.ErrUnsuccessful)
}

func TestWaterQualityPageFailsOnAnyUnsuccessfulRequest(t *testing.T) {
	src := &fakeSource{waterOK: true, provincesDown: true}

	page, err := view.WaterQuality(src, ocean.WaterQualityFilter{Year: "2020", Month: "05"})(context.Background())
	require.ErrorIs(t, err, view.ErrUnsuccessful)
	assert.Contains(t, err.Error(), "province table missing")
	assert.Empty(t, page.Records)
}
