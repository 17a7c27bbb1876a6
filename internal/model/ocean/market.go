package ocean

// MarketData wraps the price list relayed from the wholesale market feed.
type MarketData struct {
	List []MarketItem `json:"list"`
}

// MarketItem 单个商品的价格信息。
type MarketItem struct {
	ID        any    `json:"id"`
	ProdName  string `json:"prodName"`
	ProdCat   string `json:"prodCat"`
	LowPrice  any    `json:"lowPrice"`
	HighPrice any    `json:"highPrice"`
	AvgPrice  any    `json:"avgPrice"`
	Place     string `json:"place"`
	SpecInfo  string `json:"specInfo"`
	UnitInfo  string `json:"unitInfo"`
}
