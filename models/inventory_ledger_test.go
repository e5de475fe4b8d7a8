package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/boh_backend/utils"
	"github.com/shopspring/decimal"
)

func TestLedgerRowsAreImmutableWithDistinctCode(t *testing.T) {
	row := &InventoryTransaction{}

	err := row.BeforeUpdate(nil)
	if err == nil {
		t.Fatal("BeforeUpdate must reject")
	}
	if !utils.IsCode(err, utils.CodeImmutable) {
		t.Fatalf("BeforeUpdate: expected %s, got %v", utils.CodeImmutable, err)
	}

	err = row.BeforeDelete(nil)
	if err == nil {
		t.Fatal("BeforeDelete must reject")
	}
	if !utils.IsCode(err, utils.CodeImmutable) {
		t.Fatalf("BeforeDelete: expected %s, got %v", utils.CodeImmutable, err)
	}
}

func TestLedgerSignRulesSurfaceValidationCode(t *testing.T) {
	cases := []struct {
		name string
		row  InventoryTransaction
		code string
	}{
		{
			name: "usage with positive qty",
			row:  InventoryTransaction{Type: InventoryTransactionTypeUsage, Qty: decimal.NewFromInt(1)},
			code: utils.CodeValidationFailed,
		},
		{
			name: "usage with zero qty",
			row:  InventoryTransaction{Type: InventoryTransactionTypeUsage, Qty: decimal.Zero},
			code: utils.CodeValidationFailed,
		},
		{
			name: "receipt with negative qty",
			row:  InventoryTransaction{Type: InventoryTransactionTypeReceipt, Qty: decimal.NewFromInt(-1)},
			code: utils.CodeValidationFailed,
		},
		{
			name: "unknown type",
			row:  InventoryTransaction{Type: "transfer", Qty: decimal.NewFromInt(1)},
			code: utils.CodeInvalidEnum,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.row.BeforeSave(nil)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !utils.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestLedgerBeforeSaveDerivesOutgoingFlag(t *testing.T) {
	usage := InventoryTransaction{Type: InventoryTransactionTypeUsage, Qty: decimal.NewFromInt(-3)}
	if err := usage.BeforeSave(nil); err != nil {
		t.Fatalf("valid usage row rejected: %v", err)
	}
	if usage.IsOutgoing == nil || !*usage.IsOutgoing {
		t.Fatal("negative qty must set IsOutgoing")
	}
	if usage.TransactionTime.IsZero() {
		t.Fatal("BeforeSave must default TransactionTime")
	}

	receipt := InventoryTransaction{Type: InventoryTransactionTypeReceipt, Qty: decimal.NewFromInt(3)}
	if err := receipt.BeforeSave(nil); err != nil {
		t.Fatalf("valid receipt row rejected: %v", err)
	}
	if receipt.IsOutgoing == nil || *receipt.IsOutgoing {
		t.Fatal("positive qty must clear IsOutgoing")
	}
}
