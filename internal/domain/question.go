package domain

// Question is one step of the check-in sequence.
// OrderNum defines traversal order; gaps are allowed.
type Question struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Active   bool   `json:"active"`
	OrderNum int    `json:"order_num"`
}
