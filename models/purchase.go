package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PurchaseOrder struct {
	ID           int                 `gorm:"primary_key" json:"id"`
	TenantId     string              `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId      int                 `gorm:"index;not null" json:"venue_id"`
	VendorId     int                 `gorm:"index;not null" json:"vendor_id"`
	OrderNo      string              `gorm:"size:100;not null" json:"order_no"`
	Status       PurchaseOrderStatus `gorm:"type:enum('open','received','closed');not null;default:'open'" json:"status"`
	ExpectedDate time.Time           `gorm:"not null" json:"expected_date"`
	Lines        []PurchaseOrderLine `json:"lines"`
	CreatedAt    time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type PurchaseOrderLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PurchaseOrderId int             `gorm:"index;not null" json:"purchase_order_id"`
	ItemId          int             `gorm:"not null" json:"item_id"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
}

// PurchaseReceipt records what actually arrived against an order. Receipt
// postings are the only path that moves stock up and refreshes last cost.
type PurchaseReceipt struct {
	ID              int                   `gorm:"primary_key" json:"id"`
	TenantId        string                `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId         int                   `gorm:"index;not null" json:"venue_id"`
	VendorId        int                   `gorm:"index;not null" json:"vendor_id"`
	PurchaseOrderId int                   `gorm:"index;not null" json:"purchase_order_id"`
	ReceivedAt      time.Time             `gorm:"not null;index" json:"received_at"`
	AutoApproved    *bool                 `gorm:"not null;default:false" json:"auto_approved"`
	Lines           []PurchaseReceiptLine `json:"lines"`
	CreatedAt       time.Time             `gorm:"autoCreateTime" json:"created_at"`
}

// MarkReceiptAutoApproved records that the exception path waved this receipt
// through, so scorecards can report an auto-approval rate per vendor.
func MarkReceiptAutoApproved(ctx context.Context, receiptId int) error {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return errors.New("tenant id is required")
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(&PurchaseReceipt{}).
		Where("id = ? AND tenant_id = ?", receiptId, tenantId).
		Update("AutoApproved", true).Error
}

type PurchaseReceiptLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	PurchaseReceiptId int             `gorm:"index;not null" json:"purchase_receipt_id"`
	ItemId            int             `gorm:"not null" json:"item_id"`
	Quantity          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
}

type NewPurchaseOrder struct {
	VenueId      int                    `json:"venue_id" binding:"required"`
	VendorId     int                    `json:"vendor_id" binding:"required"`
	OrderNo      string                 `json:"order_no" binding:"required"`
	ExpectedDate time.Time              `json:"expected_date" binding:"required"`
	Lines        []NewPurchaseOrderLine `json:"lines" binding:"required,dive"`
}

type NewPurchaseOrderLine struct {
	ItemId   int             `json:"item_id" binding:"required"`
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
	UnitCost decimal.Decimal `json:"unit_cost" binding:"required"`
}

func (input *NewPurchaseOrder) validate(ctx context.Context, tenantId string) error {
	if len(input.Lines) == 0 {
		return utils.ValidationError("purchase order must have at least one line")
	}
	if err := utils.ValidateResourceId[Vendor](ctx, tenantId, input.VendorId); err != nil {
		return err
	}
	itemIds := make([]int, 0, len(input.Lines))
	for _, line := range input.Lines {
		if !line.Quantity.IsPositive() {
			return utils.ValidationError("purchase order line quantity must be greater than zero")
		}
		if line.UnitCost.IsNegative() {
			return utils.ValidationError("purchase order line unit cost cannot be negative")
		}
		itemIds = append(itemIds, line.ItemId)
	}
	return utils.ValidateResourcesId[Item](ctx, tenantId, utils.UniqueSlice(itemIds))
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	if err := input.validate(ctx, tenantId); err != nil {
		return nil, err
	}

	order := PurchaseOrder{
		TenantId:     tenantId,
		VenueId:      input.VenueId,
		VendorId:     input.VendorId,
		OrderNo:      input.OrderNo,
		Status:       PurchaseOrderStatusOpen,
		ExpectedDate: input.ExpectedDate,
	}
	for _, line := range input.Lines {
		order.Lines = append(order.Lines, PurchaseOrderLine{
			ItemId:   line.ItemId,
			Quantity: line.Quantity,
			UnitCost: line.UnitCost,
		})
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func GetPurchaseOrder(ctx context.Context, id int) (*PurchaseOrder, error) {
	tenantId, ok := utils.GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return nil, errors.New("tenant id is required")
	}
	return utils.FetchModel[PurchaseOrder](ctx, tenantId, id, "Lines")
}

// receivedQtyByItem sums every receipt line already posted against the order.
func receivedQtyByItem(tx *gorm.DB, tenantId string, purchaseOrderId int) (map[int]decimal.Decimal, error) {
	type lineSum struct {
		ItemId int
		Qty    decimal.Decimal
	}
	var sums []lineSum
	err := tx.Model(&PurchaseReceiptLine{}).
		Select("purchase_receipt_lines.item_id, SUM(purchase_receipt_lines.quantity) AS qty").
		Joins("JOIN purchase_receipts ON purchase_receipts.id = purchase_receipt_lines.purchase_receipt_id").
		Where("purchase_receipts.tenant_id = ? AND purchase_receipts.purchase_order_id = ?", tenantId, purchaseOrderId).
		Group("purchase_receipt_lines.item_id").
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	received := make(map[int]decimal.Decimal, len(sums))
	for _, s := range sums {
		received[s.ItemId] = s.Qty
	}
	return received, nil
}
