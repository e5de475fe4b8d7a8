package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

type NewPurchaseReceipt struct {
	PurchaseOrderId int                      `json:"purchase_order_id" binding:"required"`
	ReceivedAt      time.Time                `json:"received_at"`
	Lines           []NewPurchaseReceiptLine `json:"lines" binding:"required,dive"`
}

type NewPurchaseReceiptLine struct {
	ItemId   int             `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost decimal.Decimal `json:"unit_cost" binding:"required"`
}

// PostPurchaseReceipt records a delivery against an open purchase order.
//
// One transaction covers the whole posting: receipt rows, one strictly-positive
// ledger transaction per line (refreshing the balance's last cost), one cost
// history observation per line for the anomaly window, and the order status
// rollforward once every ordered quantity is covered.
func PostPurchaseReceipt(ctx context.Context, input *NewPurchaseReceipt) (*PurchaseReceipt, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if len(input.Lines) == 0 {
		return nil, utils.ValidationError("receipt must have at least one line")
	}
	for _, line := range input.Lines {
		if !line.Quantity.IsPositive() {
			return nil, utils.ValidationError("receipt line quantity must be greater than zero")
		}
		if line.UnitCost.IsNegative() {
			return nil, utils.ValidationError("receipt line unit cost cannot be negative")
		}
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}

	var order PurchaseOrder
	if err := tx.Preload("Lines").
		Where("tenant_id = ?", tenantId).
		First(&order, input.PurchaseOrderId).Error; err != nil {
		tx.Rollback()
		return nil, utils.NotFoundError("purchase order not found")
	}
	if order.Status == PurchaseOrderStatusClosed {
		tx.Rollback()
		return nil, utils.ValidationError("cannot receive against a closed purchase order")
	}

	orderedByItem := make(map[int]decimal.Decimal, len(order.Lines))
	for _, line := range order.Lines {
		orderedByItem[line.ItemId] = orderedByItem[line.ItemId].Add(line.Quantity)
	}
	for _, line := range input.Lines {
		if _, ok := orderedByItem[line.ItemId]; !ok {
			tx.Rollback()
			return nil, utils.ValidationError("receipt line item is not on the purchase order")
		}
	}

	if err := AcquireVenuePostingLock(tx, tenantId, order.VenueId); err != nil {
		tx.Rollback()
		return nil, err
	}
	defer ReleaseVenuePostingLock(tx, tenantId, order.VenueId)

	receipt := PurchaseReceipt{
		TenantId:        tenantId,
		VenueId:         order.VenueId,
		VendorId:        order.VendorId,
		PurchaseOrderId: order.ID,
		ReceivedAt:      receivedAt,
		AutoApproved:    utils.NewFalse(),
	}
	for _, line := range input.Lines {
		receipt.Lines = append(receipt.Lines, PurchaseReceiptLine{
			ItemId:   line.ItemId,
			Quantity: line.Quantity,
			UnitCost: line.UnitCost,
		})
	}
	if err := tx.Create(&receipt).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	for _, line := range receipt.Lines {
		unitCost := line.UnitCost
		txn := InventoryTransaction{
			TenantId:        tenantId,
			VenueId:         order.VenueId,
			ItemId:          line.ItemId,
			Type:            InventoryTransactionTypeReceipt,
			Qty:             line.Quantity,
			UnitCost:        unitCost,
			ReferenceType:   LedgerReferenceTypeReceipt,
			ReferenceId:     receipt.ID,
			TransactionTime: receivedAt,
		}
		if _, err := ApplyInventoryTransaction(tx, &txn, &unitCost); err != nil {
			tx.Rollback()
			return nil, err
		}

		observation := CostHistory{
			TenantId:      tenantId,
			ItemId:        line.ItemId,
			VendorId:      order.VendorId,
			VenueId:       order.VenueId,
			Cost:          unitCost,
			EffectiveDate: receivedAt,
		}
		if err := tx.Create(&observation).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	received, err := receivedQtyByItem(tx, tenantId, order.ID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	fullyReceived := true
	for itemId, ordered := range orderedByItem {
		if received[itemId].LessThan(ordered) {
			fullyReceived = false
			break
		}
	}
	if fullyReceived && order.Status == PurchaseOrderStatusOpen {
		if err := tx.Model(&PurchaseOrder{}).Where("id = ?", order.ID).
			Update("status", PurchaseOrderStatusReceived).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}
