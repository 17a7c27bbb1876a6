package ocean

// WaterQualityRecord is one monitoring-station row; columns vary by period table.
type WaterQualityRecord map[string]any

// Period identifies a monthly water quality table.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// WaterQualityStats 水质统计数据。
type WaterQualityStats struct {
	Categories []CategoryCount `json:"categories"`
	Provinces  []ProvinceCount `json:"provinces"`
	MetricsAvg map[string]any  `json:"metrics_avg"`
}

// CategoryCount 水质类别计数。
type CategoryCount struct {
	Category string `json:"water_quality_category"`
	Count    int    `json:"count"`
}

// ProvinceCount 省份站点计数。
type ProvinceCount struct {
	Province string `json:"province"`
	Count    int    `json:"count"`
}

// WaterQualityFilter narrows the water quality query.
type WaterQualityFilter struct {
	Year     string `json:"year"`
	Month    string `json:"month"`
	Province string `json:"province,omitempty"`
	Basin    string `json:"basin,omitempty"`
}
