package domain

import (
	"fmt"
	"strings"
)

const receiptDateLayout = "Jan 2, 2006, 3:04:05 PM"

// RenderReceipt formats a transaction as the plain-text receipt customers download.
func RenderReceipt(tx Transaction) string {
	reference := strings.ToUpper(tx.ID.String()[:8])

	var b strings.Builder
	b.WriteString("HERITAGE BANK\n")
	b.WriteString("Transaction Receipt\n")
	b.WriteString("-------------------\n")
	fmt.Fprintf(&b, "Reference: %s\n", reference)
	fmt.Fprintf(&b, "Date: %s\n", tx.CreatedAt.UTC().Format(receiptDateLayout))
	fmt.Fprintf(&b, "Type: %s\n", strings.ToUpper(tx.TransactionType))
	fmt.Fprintf(&b, "Amount: $%s\n", FormatCents(tx.Amount))
	if tx.Recipient != nil && *tx.Recipient != "" {
		fmt.Fprintf(&b, "Recipient: %s\n", *tx.Recipient)
	}
	description := "N/A"
	if tx.Description != nil && *tx.Description != "" {
		description = *tx.Description
	}
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(tx.Status))
	b.WriteString("-------------------\n")
	b.WriteString("Thank you for banking with us.\n")
	return b.String()
}

// ReceiptFilename returns the download name for a transaction receipt.
func ReceiptFilename(tx Transaction) string {
	return fmt.Sprintf("receipt-%s.txt", tx.ID.String()[:8])
}
