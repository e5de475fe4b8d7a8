package posevents

import (
	"time"

	"github.com/shopspring/decimal"
)

// pushEnvelope is the Pub/Sub push delivery wrapper. The byte slice field
// handles base64 decoding during unmarshalling.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
		ID         string            `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// saleMessage is the POS-side payload inside the envelope.
type saleMessage struct {
	TenantId      string          `json:"tenant_id"`
	VenueId       int             `json:"venue_id"`
	RecipeId      *int            `json:"recipe_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	SaleTime      time.Time       `json:"sale_time"`
	ExternalId    string          `json:"external_id"`
	CorrelationId string          `json:"correlation_id"`
}
