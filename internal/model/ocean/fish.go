package ocean

// FishStatistics 鱼类统计数据，按物种聚合。
type FishStatistics struct {
	SpeciesCount map[string]float64 `json:"species_count"`
	WeightAvg    map[string]float64 `json:"weight_avg"`
	Proportion   map[string]float64 `json:"proportion"`
	LengthWeight []LengthWeight     `json:"length_weight,omitempty"`
}

// LengthWeight 单条鱼的长度与重量记录。
type LengthWeight struct {
	Species string  `json:"species"`
	Length1 float64 `json:"length1"`
	Weight  float64 `json:"weight"`
}

// Identification 海洋生物图像识别结果。
type Identification struct {
	Species string `json:"species"`
}

// Prediction 体长预测结果。
type Prediction struct {
	PredictedLength float64 `json:"predicted_length"`
	CurrentLength   float64 `json:"current_length,omitempty"`
}
