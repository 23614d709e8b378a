package shared

import "fmt"

// StockCountLockKey builds the redis key guarding reconciliation of one count.
func StockCountLockKey(tenantID, countID int64) string {
	return fmt.Sprintf("inventory:tenant:%d:count:%d:lock", tenantID, countID)
}

// RevaluationLockKey builds the redis key guarding a tenant revaluation run.
func RevaluationLockKey(tenantID int64) string {
	return fmt.Sprintf("inventory:tenant:%d:revaluation:lock", tenantID)
}
