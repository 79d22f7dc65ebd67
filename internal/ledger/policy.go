package ledger

import "fmt"

// mapPaymentMethodToAccount maps a payment method code to its clearing
// account. Unknown methods land in the generic clearing account and are
// reconciled manually.
func mapPaymentMethodToAccount(methodCode string) string {
	switch methodCode {
	case "cash-payment":
		return AccountCashOnHand
	case "mpesa-payment":
		return AccountClearingMpesa
	case "credit-payment":
		return AccountClearingCredit
	default:
		return AccountClearingGeneric
	}
}

// paymentEntry: debit cash/clearing, credit sales.
func paymentEntry(pc PaymentContext) PostingPayload {
	meta := map[string]any{
		"orderId":    pc.OrderID,
		"orderCode":  pc.OrderCode,
		"method":     pc.Method,
		"customerId": pc.CustomerID,
	}
	return PostingPayload{
		ChannelID: pc.ChannelID,
		Memo:      fmt.Sprintf("Payment received for order %s", pc.OrderCode),
		Lines: []PostingLine{
			{AccountCode: mapPaymentMethodToAccount(pc.Method), Debit: pc.Amount, Meta: meta},
			{AccountCode: AccountSales, Credit: pc.Amount, Meta: meta},
		},
	}
}

// creditSaleEntry: debit accounts receivable, credit sales.
func creditSaleEntry(sc SaleContext) PostingPayload {
	meta := map[string]any{
		"orderId":    sc.OrderID,
		"orderCode":  sc.OrderCode,
		"customerId": sc.CustomerID,
	}
	return PostingPayload{
		ChannelID: sc.ChannelID,
		Memo:      fmt.Sprintf("Credit sale for order %s", sc.OrderCode),
		Lines: []PostingLine{
			{AccountCode: AccountAccountsReceivable, Debit: sc.Amount, Meta: meta},
			{AccountCode: AccountSales, Credit: sc.Amount, Meta: meta},
		},
	}
}

// paymentAllocationEntry: debit cash/clearing, credit accounts receivable.
func paymentAllocationEntry(pc PaymentContext) PostingPayload {
	meta := map[string]any{
		"orderId":    pc.OrderID,
		"orderCode":  pc.OrderCode,
		"method":     pc.Method,
		"customerId": pc.CustomerID,
	}
	return PostingPayload{
		ChannelID: pc.ChannelID,
		Memo:      fmt.Sprintf("Payment allocation for order %s", pc.OrderCode),
		Lines: []PostingLine{
			{AccountCode: mapPaymentMethodToAccount(pc.Method), Debit: pc.Amount, Meta: meta},
			{AccountCode: AccountAccountsReceivable, Credit: pc.Amount, Meta: meta},
		},
	}
}

// supplierPurchaseEntry: debit purchases, credit accounts payable.
func supplierPurchaseEntry(pc PurchaseContext) PostingPayload {
	meta := map[string]any{
		"purchaseId":        pc.PurchaseID,
		"purchaseReference": pc.PurchaseReference,
		"supplierId":        pc.SupplierID,
	}
	return PostingPayload{
		ChannelID: pc.ChannelID,
		Memo:      fmt.Sprintf("Credit purchase %s", pc.PurchaseReference),
		Lines: []PostingLine{
			{AccountCode: AccountPurchases, Debit: pc.Amount, Meta: meta},
			{AccountCode: AccountAccountsPayable, Credit: pc.Amount, Meta: meta},
		},
	}
}

// supplierPaymentEntry: debit accounts payable, credit cash/clearing.
func supplierPaymentEntry(sc SupplierPaymentContext) PostingPayload {
	meta := map[string]any{
		"purchaseId":        sc.PurchaseID,
		"purchaseReference": sc.PurchaseReference,
		"supplierId":        sc.SupplierID,
		"method":            sc.Method,
	}
	return PostingPayload{
		ChannelID: sc.ChannelID,
		Memo:      fmt.Sprintf("Payment to supplier for purchase %s", sc.PurchaseReference),
		Lines: []PostingLine{
			{AccountCode: AccountAccountsPayable, Debit: sc.Amount, Meta: meta},
			{AccountCode: mapPaymentMethodToAccount(sc.Method), Credit: sc.Amount, Meta: meta},
		},
	}
}

// refundEntry: debit sales returns, credit the original clearing account.
func refundEntry(rc RefundContext) PostingPayload {
	meta := map[string]any{
		"orderId":           rc.OrderID,
		"orderCode":         rc.OrderCode,
		"originalPaymentId": rc.OriginalPaymentID,
		"method":            rc.Method,
	}
	return PostingPayload{
		ChannelID: rc.ChannelID,
		Memo:      fmt.Sprintf("Refund for order %s", rc.OrderCode),
		Lines: []PostingLine{
			{AccountCode: AccountSalesReturns, Debit: rc.Amount, Meta: meta},
			{AccountCode: mapPaymentMethodToAccount(rc.Method), Credit: rc.Amount, Meta: meta},
		},
	}
}

// inventoryPurchaseEntry: debit inventory asset; credit payable for credit
// purchases, cash otherwise.
func inventoryPurchaseEntry(ic InventoryPurchaseContext) PostingPayload {
	meta := map[string]any{
		"purchaseId":        ic.PurchaseID,
		"purchaseReference": ic.PurchaseReference,
		"supplierId":        ic.SupplierID,
		"batches":           costLegMeta(ic.Allocations),
	}
	creditAccount := AccountCashOnHand
	if ic.IsCreditPurchase {
		creditAccount = AccountAccountsPayable
	}
	return PostingPayload{
		ChannelID: ic.ChannelID,
		Memo:      fmt.Sprintf("Inventory received for purchase %s", ic.PurchaseReference),
		Lines: []PostingLine{
			{AccountCode: AccountInventoryAsset, Debit: ic.TotalCost, Meta: meta},
			{AccountCode: creditAccount, Credit: ic.TotalCost, Meta: meta},
		},
	}
}

// inventorySaleCogsEntry: debit COGS, credit inventory asset.
func inventorySaleCogsEntry(cc CogsContext) PostingPayload {
	meta := map[string]any{
		"orderId":    cc.OrderID,
		"orderCode":  cc.OrderCode,
		"customerId": cc.CustomerID,
		"batches":    costLegMeta(cc.Allocations),
	}
	return PostingPayload{
		ChannelID: cc.ChannelID,
		Memo:      fmt.Sprintf("COGS for order %s", cc.OrderCode),
		Lines: []PostingLine{
			{AccountCode: AccountCOGS, Debit: cc.TotalCogs, Meta: meta},
			{AccountCode: AccountInventoryAsset, Credit: cc.TotalCogs, Meta: meta},
		},
	}
}

// inventoryWriteOffEntry: debit inventory loss, credit inventory asset.
func inventoryWriteOffEntry(wc WriteOffContext) PostingPayload {
	meta := map[string]any{
		"adjustmentId": wc.AdjustmentID,
		"reason":       wc.Reason,
		"batches":      costLegMeta(wc.Allocations),
	}
	return PostingPayload{
		ChannelID: wc.ChannelID,
		Memo:      fmt.Sprintf("Inventory write-off %s", wc.AdjustmentID),
		Lines: []PostingLine{
			{AccountCode: AccountInventoryLoss, Debit: wc.TotalLoss, Meta: meta},
			{AccountCode: AccountInventoryAsset, Credit: wc.TotalLoss, Meta: meta},
		},
	}
}

func costLegMeta(legs []CostLeg) []map[string]any {
	out := make([]map[string]any, 0, len(legs))
	for _, leg := range legs {
		out = append(out, map[string]any{
			"batchId":   leg.BatchID,
			"quantity":  leg.Quantity,
			"unitCost":  leg.UnitCost,
			"totalCost": leg.TotalCost,
		})
	}
	return out
}
