package orders

type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// forward path only; cancel and void are handled by the lifecycle manager
var validNext = map[Status]map[Status]bool{
	StatusNew:        {StatusProcessing: true},
	StatusProcessing: {StatusShipped: true},
	StatusShipped:    {StatusRefunded: true},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Reversed reports whether the order's stock has already been given back.
func (o *Order) Reversed() bool {
	return o.Void || o.Status == StatusCancelled
}

// Editable: items may only change before shipping and while stock is held.
func (o *Order) Editable() bool {
	return !o.Reversed() && (o.Status == StatusNew || o.Status == StatusProcessing)
}

// Reversible: cancel and void are allowed until the order leaves the warehouse path.
func (o *Order) Reversible() bool {
	if o.Reversed() {
		return false
	}
	switch o.Status {
	case StatusNew, StatusProcessing, StatusShipped:
		return true
	}
	return false
}
