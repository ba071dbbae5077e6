package types

// OrderStatus is the lifecycle status of an order
type OrderStatus string

func (s OrderStatus) String() string {
	return string(s)
}

const (
	StatusCreated         OrderStatus = "created"
	StatusSearchingDriver OrderStatus = "searching_driver"
	StatusDriverAssigned  OrderStatus = "driver_assigned"
	StatusDriverArrived   OrderStatus = "driver_arrived"
	StatusInProgress      OrderStatus = "in_progress"
	StatusCompleted       OrderStatus = "completed"
	StatusCancelled       OrderStatus = "cancelled"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case StatusCreated, StatusSearchingDriver, StatusDriverAssigned, StatusDriverArrived,
		StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition can leave s
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether a driver is currently bound to an order in status s
func (s OrderStatus) IsActive() bool {
	return s == StatusDriverAssigned || s == StatusDriverArrived || s == StatusInProgress
}

// ActiveOrderStatuses are the statuses that keep a driver out of dispatch
var ActiveOrderStatuses = []OrderStatus{StatusDriverAssigned, StatusDriverArrived, StatusInProgress}

// DriverStatus is the availability of a driver
type DriverStatus string

func (s DriverStatus) String() string {
	return string(s)
}

const (
	DriverOnline  DriverStatus = "online"
	DriverOffline DriverStatus = "offline"
	DriverBusy    DriverStatus = "busy"
	DriverBreak   DriverStatus = "break"
)

func (s DriverStatus) IsValid() bool {
	switch s {
	case DriverOnline, DriverOffline, DriverBusy, DriverBreak:
		return true
	default:
		return false
	}
}
