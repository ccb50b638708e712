package shared

import "fmt"

// LedgerRebuildLeaseKey builds the redis key guarding a company's ledger rebuild.
func LedgerRebuildLeaseKey(companyID int64) string {
	return fmt.Sprintf("ledger:company:%d:rebuild", companyID)
}
