package models

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryBalance is the current-balance projection for one (venue, item).
// It is derived data: mutated only through ApplyInventoryTransaction and fully
// rebuildable from the transaction ledger (cmd/inventory-rebuild).
//
// QtyOnHand is deliberately unclamped; oversold/uncounted stock shows as negative.
type InventoryBalance struct {
	ID        int             `gorm:"primary_key" json:"id"`
	TenantId  string          `gorm:"size:64;not null;index:uniq_balance,unique" json:"tenant_id"`
	VenueId   int             `gorm:"not null;index:uniq_balance,unique" json:"venue_id"`
	ItemId    int             `gorm:"not null;index:uniq_balance,unique" json:"item_id"`
	QtyOnHand decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qty_on_hand"`
	LastCost  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"last_cost"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InventoryTransaction is the append-only inventory ledger.
// Usage rows are strictly negative; receipts positive; adjustments either sign.
type InventoryTransaction struct {
	ID            int                      `gorm:"primary_key" json:"id"`
	TenantId      string                   `gorm:"index;size:64;not null" json:"tenant_id"`
	VenueId       int                      `gorm:"index;not null" json:"venue_id"`
	ItemId        int                      `gorm:"index;not null" json:"item_id"`
	Type          InventoryTransactionType `gorm:"type:enum('usage','receipt','adjustment');not null" json:"type"`
	Qty           decimal.Decimal          `gorm:"type:decimal(20,4);not null" json:"qty"`
	ClosingQty    decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"closing_qty"`
	UnitCost      decimal.Decimal          `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	ReferenceType LedgerReferenceType      `gorm:"type:enum('SALE','RCPT','ADJ','REV','RB');not null" json:"reference_type"`
	ReferenceId   int                      `gorm:"index" json:"reference_id"`
	IsOutgoing    *bool                    `gorm:"not null;default:false" json:"is_outgoing"`
	// Reversal rows compensate a prior row and point back at it; never netted in place.
	IsReversal            bool      `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesTransactionId *int      `gorm:"index" json:"reverses_transaction_id"`
	TransactionTime       time.Time `gorm:"not null;index" json:"transaction_time"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeSave enforces internal invariants for the inventory ledger.
//
// Balance queries rely on IsOutgoing to classify consumptions, and the usage
// type carries a hard sign rule: a usage row with non-negative qty would
// silently inflate stock, so it is rejected rather than repaired.
func (it *InventoryTransaction) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if it == nil {
		return nil
	}
	if !it.Type.Valid() {
		return utils.NewAppError(utils.CodeInvalidEnum,
			fmt.Sprintf("invalid inventory transaction type %q", it.Type),
			"use one of usage, receipt, adjustment")
	}
	if it.Type == InventoryTransactionTypeUsage && !it.Qty.IsNegative() {
		return utils.ValidationError("usage transactions must have strictly negative qty")
	}
	if it.Type == InventoryTransactionTypeReceipt && !it.Qty.IsPositive() {
		return utils.ValidationError("receipt transactions must have strictly positive qty")
	}
	if it.IsOutgoing == nil {
		b := false
		it.IsOutgoing = &b
	}
	if !it.Qty.IsZero() {
		b := it.Qty.IsNegative()
		it.IsOutgoing = &b
	}
	if it.TransactionTime.IsZero() {
		it.TransactionTime = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate makes posted ledger rows immutable. Corrections are reversal rows.
func (it *InventoryTransaction) BeforeUpdate(tx *gorm.DB) error {
	_ = tx
	return utils.ImmutableError("inventory transactions are append-only; post a reversal instead")
}

func (it *InventoryTransaction) BeforeDelete(tx *gorm.DB) error {
	_ = tx
	return utils.ImmutableError("inventory transactions are append-only; post a reversal instead")
}

// ApplyInventoryTransaction posts one ledger row and updates the balance projection
// in the caller's transaction; both commit or neither does. Callers must hold the
// venue posting lock on the same connection.
//
// lastCost, when non-nil, refreshes InventoryBalance.LastCost (receipt postings).
func ApplyInventoryTransaction(tx *gorm.DB, txn *InventoryTransaction, lastCost *decimal.Decimal) (*InventoryBalance, error) {
	if tx == nil {
		return nil, errors.New("tx is nil")
	}
	if txn == nil {
		return nil, errors.New("transaction is nil")
	}
	if txn.TenantId == "" {
		return nil, errors.New("tenant id is required")
	}

	var balance InventoryBalance
	err := tx.Where("tenant_id = ? AND venue_id = ? AND item_id = ?", txn.TenantId, txn.VenueId, txn.ItemId).
		First(&balance).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		balance = InventoryBalance{
			TenantId: txn.TenantId,
			VenueId:  txn.VenueId,
			ItemId:   txn.ItemId,
		}
	}

	priorQty := balance.QtyOnHand
	balance.QtyOnHand = balance.QtyOnHand.Add(txn.Qty)
	if lastCost != nil {
		balance.LastCost = *lastCost
	}
	txn.ClosingQty = balance.QtyOnHand

	if err := tx.Create(txn).Error; err != nil {
		return nil, err
	}

	// Crossing below zero raises an alert in the same tx; posting is never blocked.
	if !priorQty.IsNegative() && balance.QtyOnHand.IsNegative() {
		if err := raiseNegativeStockAlert(tx, txn, balance.QtyOnHand); err != nil {
			return nil, err
		}
	}
	if balance.ID == 0 {
		if err := tx.Create(&balance).Error; err != nil {
			return nil, err
		}
	} else {
		updates := map[string]interface{}{"QtyOnHand": balance.QtyOnHand}
		if lastCost != nil {
			updates["LastCost"] = balance.LastCost
		}
		if err := tx.Model(&InventoryBalance{}).Where("id = ?", balance.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &balance, nil
}

func raiseNegativeStockAlert(tx *gorm.DB, txn *InventoryTransaction, qtyOnHand decimal.Decimal) error {
	alert := Alert{
		TenantId: txn.TenantId,
		VenueId:  txn.VenueId,
		Type:     AlertTypeNegativeStock,
		Severity: AlertSeverityWarning,
		Title:    fmt.Sprintf("Negative stock for item %d", txn.ItemId),
		Message: fmt.Sprintf("on-hand quantity went to %s after %s posting %s",
			qtyOnHand.String(), txn.Type, txn.Qty.String()),
	}
	return CreateAlertInTx(tx, &alert)
}

// RebuildInventoryBalances recomputes every (venue, item) projection for a tenant
// from the ledger. Recovery path; normal writes go through ApplyInventoryTransaction.
func RebuildInventoryBalances(tx *gorm.DB, tenantId string) (int, error) {
	if tx == nil {
		return 0, errors.New("tx is nil")
	}

	type ledgerSum struct {
		VenueId int
		ItemId  int
		Qty     decimal.Decimal
	}
	var sums []ledgerSum
	err := tx.Model(&InventoryTransaction{}).
		Select("venue_id, item_id, SUM(qty) AS qty").
		Where("tenant_id = ?", tenantId).
		Group("venue_id, item_id").
		Scan(&sums).Error
	if err != nil {
		return 0, err
	}

	rebuilt := 0
	for _, s := range sums {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "venue_id"}, {Name: "item_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"qty_on_hand": s.Qty}),
		}).Create(&InventoryBalance{
			TenantId:  tenantId,
			VenueId:   s.VenueId,
			ItemId:    s.ItemId,
			QtyOnHand: s.Qty,
		}).Error
		if err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	return rebuilt, nil
}
