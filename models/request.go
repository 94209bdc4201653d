package models

// OrderLinksRequest is the payload for POST /api/v1/orders/links.
type OrderLinksRequest struct {
	// OrdersHTML is the orders fragment returned by a case query. Required.
	OrdersHTML string `json:"orders_html" form:"orders_html" binding:"required"`
}

// ArchiveRequest is the payload for POST /api/v1/orders/archive.
// Links takes precedence; OrdersHTML is parsed for links when Links is empty.
type ArchiveRequest struct {
	Links      []OrderLink `json:"links,omitempty" binding:"omitempty,max=200,dive"`
	OrdersHTML string      `json:"orders_html,omitempty" form:"orders_html"`
}
