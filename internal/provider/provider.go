package provider

import (
	"context"
	"time"
)

// Quote is the normalized shape returned by all providers.
// Price is a decimal string so no precision is lost on the wire.
// Source is "<provider>:<exchange>:<session>", e.g. "yahoo:NMS:regular".
type Quote struct {
	Symbol     string    `json:"symbol"`
	Price      string    `json:"price"`
	Currency   string    `json:"currency"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) ([]Quote, error)
}
