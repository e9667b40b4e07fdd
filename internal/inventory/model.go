package inventory

type StockLevel struct {
	ProductID string `json:"productId"`
	Available int    `json:"available"`
	InStock   bool   `json:"inStock"`
}

type Line struct {
	ProductID string
	Quantity  int
}

// ShortLine reports a line that could not be satisfied, with enough detail
// for a buyer-facing message (which product, how many are left).
type ShortLine struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

type ReserveResult struct {
	Reserved []Line
	Short    []ShortLine
}
