package stockcount

import "github.com/shopspring/decimal"

// StartedEvent is published once the system quantities are snapshotted.
type StartedEvent struct {
	CountID     int64  `json:"count_id"`
	CountNumber string `json:"count_number"`
	WarehouseID int64  `json:"warehouse_id"`
	Items       int    `json:"items"`
}

// CompletedEvent is published when every item has been counted.
type CompletedEvent struct {
	CountID            int64           `json:"count_id"`
	CountNumber        string          `json:"count_number"`
	WarehouseID        int64           `json:"warehouse_id"`
	ItemsWithVariance  int             `json:"items_with_variance"`
	TotalVarianceValue decimal.Decimal `json:"total_variance_value"`
}

// ReconciledEvent is published once a count is closed.
type ReconciledEvent struct {
	CountID      int64  `json:"count_id"`
	CountNumber  string `json:"count_number"`
	WarehouseID  int64  `json:"warehouse_id"`
	AutoAdjusted bool   `json:"auto_adjusted"`
	Adjustments  int    `json:"adjustments"`
}

// CancelledEvent is published when a count is abandoned.
type CancelledEvent struct {
	CountID     int64  `json:"count_id"`
	CountNumber string `json:"count_number"`
	Reason      string `json:"reason"`
}
