package domain

// ServiceName is reported by the health endpoint.
const ServiceName = "flow-market"

// Health is the body of the health endpoint.
type Health struct {
	OK       bool   `json:"ok"`
	Service  string `json:"service"`
	Products int64  `json:"products"`
	Messages int64  `json:"messages"`
	TS       string `json:"ts"`
}
