package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/models"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const posSaleHandler = "pos_sale"

// PosSaleEvent is one POS check line as delivered by the ingestion topic.
// MessageId is the broker's delivery id and drives idempotency; ExternalId is
// the POS system's own identifier for the check line.
type PosSaleEvent struct {
	MessageId  string          `json:"message_id" binding:"required"`
	VenueId    int             `json:"venue_id" binding:"required"`
	RecipeId   *int            `json:"recipe_id"`
	Quantity   decimal.Decimal `json:"quantity" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	SaleTime   time.Time       `json:"sale_time"`
	ExternalId string          `json:"external_id" binding:"required"`
}

// ProcessPosSale ingests one POS sale event exactly once per message id.
// Redelivery of a SUCCEEDED message is a clean no-op; a payload carrying a
// known external id updates the existing sale (late recipe mapping) instead of
// double-counting it.
func ProcessPosSale(ctx context.Context, event *PosSaleEvent) (*models.Sale, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	db := config.GetDB().WithContext(ctx)
	skip, err := BeginIdempotency(db, tenantId, posSaleHandler, event.MessageId)
	if err != nil {
		return nil, err
	}
	if skip {
		return findSaleByExternalId(db, tenantId, event.ExternalId)
	}

	sale, err := upsertSaleFromEvent(ctx, db, tenantId, event)
	if err != nil {
		_ = MarkIdempotencyFailed(db, tenantId, posSaleHandler, event.MessageId, err)
		return nil, err
	}
	if err := MarkIdempotencySucceeded(db, tenantId, posSaleHandler, event.MessageId); err != nil {
		return nil, err
	}
	return sale, nil
}

func upsertSaleFromEvent(ctx context.Context, db *gorm.DB, tenantId string, event *PosSaleEvent) (*models.Sale, error) {
	input := &models.NewSale{
		VenueId:    event.VenueId,
		RecipeId:   event.RecipeId,
		Quantity:   event.Quantity,
		Amount:     event.Amount,
		SaleTime:   event.SaleTime,
		ExternalId: event.ExternalId,
	}

	existing, err := findSaleByExternalId(db, tenantId, event.ExternalId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return models.UpdateSale(ctx, existing.ID, input)
	}
	return models.CreateSale(ctx, input)
}

func findSaleByExternalId(db *gorm.DB, tenantId, externalId string) (*models.Sale, error) {
	if externalId == "" {
		return nil, nil
	}
	var sale models.Sale
	err := db.Where("tenant_id = ? AND external_id = ?", tenantId, externalId).
		Order("id").First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}
