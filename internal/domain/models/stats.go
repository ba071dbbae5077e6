package models

import "github.com/Temutjin2k/taxi-dispatch/internal/domain/types"

type SystemStats struct {
	TotalDrivers    int     `json:"total_drivers"`
	OnlineDrivers   int     `json:"online_drivers"`
	TotalOrders     int     `json:"total_orders"`
	ActiveOrders    int     `json:"active_orders"`
	CompletedOrders int     `json:"completed_orders"`
	TotalRevenue    float64 `json:"total_revenue"`

	OnlineDriversWS int                     `json:"online_drivers_ws"`
	Connections     map[types.ActorKind]int `json:"connections"`
	ActiveSearches  int                     `json:"active_searches"`
	FailedSearches  int                     `json:"failed_searches"`
}
