package ocean

import "strings"

// Forecast is the open-meteo payload relayed by the weather and air-quality endpoints.
type Forecast struct {
	Hourly Hourly `json:"hourly"`
}

// Hourly holds metric arrays aligned by index with Time.
type Hourly struct {
	Time               []string   `json:"time"`
	Temperature2m      []*float64 `json:"temperature_2m,omitempty"`
	RelativeHumidity2m []*float64 `json:"relative_humidity_2m,omitempty"`
	PM10               []*float64 `json:"pm10,omitempty"`
	PM25               []*float64 `json:"pm2_5,omitempty"`
	CarbonMonoxide     []*float64 `json:"carbon_monoxide,omitempty"`
	NitrogenDioxide    []*float64 `json:"nitrogen_dioxide,omitempty"`
	SulphurDioxide     []*float64 `json:"sulphur_dioxide,omitempty"`
	Ozone              []*float64 `json:"ozone,omitempty"`
}

// WeatherPoint 单个小时的天气数据点。
type WeatherPoint struct {
	Time        string   `json:"time"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

// AirQualityPoint 单个小时的空气质量数据点。
type AirQualityPoint struct {
	Time string   `json:"time"`
	PM10 *float64 `json:"pm10"`
	PM25 *float64 `json:"pm25"`
	CO   *float64 `json:"co"`
	NO2  *float64 `json:"no2"`
	SO2  *float64 `json:"so2"`
	O3   *float64 `json:"o3"`
}

// WeatherPoints flattens the hourly arrays into chart points.
func (h Hourly) WeatherPoints() []WeatherPoint {
	points := make([]WeatherPoint, 0, len(h.Time))
	for i, t := range h.Time {
		points = append(points, WeatherPoint{
			Time:        clockPart(t),
			Temperature: at(h.Temperature2m, i),
			Humidity:    at(h.RelativeHumidity2m, i),
		})
	}
	return points
}

// AirQualityPoints flattens the hourly pollutant arrays into chart points.
func (h Hourly) AirQualityPoints() []AirQualityPoint {
	points := make([]AirQualityPoint, 0, len(h.Time))
	for i, t := range h.Time {
		points = append(points, AirQualityPoint{
			Time: clockPart(t),
			PM10: at(h.PM10, i),
			PM25: at(h.PM25, i),
			CO:   at(h.CarbonMonoxide, i),
			NO2:  at(h.NitrogenDioxide, i),
			SO2:  at(h.SulphurDioxide, i),
			O3:   at(h.Ozone, i),
		})
	}
	return points
}

// clockPart keeps the part after "T" of an ISO timestamp.
func clockPart(ts string) string {
	if _, after, ok := strings.Cut(ts, "T"); ok {
		return after
	}
	return ts
}

// at tolerates metric arrays shorter than the time axis.
func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}
