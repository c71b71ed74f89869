package shared

import "fmt"

// TokenSweepLockKey guards the expiry sweep across worker replicas.
func TokenSweepLockKey() string {
	return "stockflow:confirmation:sweep:lock"
}

// LowStockAlertLockKey guards the daily low stock alert for one calendar day.
func LowStockAlertLockKey(day string) string {
	return fmt.Sprintf("stockflow:inventory:low-stock:%s:lock", day)
}
