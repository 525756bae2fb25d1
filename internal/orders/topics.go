package orders

const (
	TopicOrderEvents         = "pharmacy.order.events"
	TopicPurchaseOrderEvents = "pharmacy.purchase_order.events"
)

// Partition key = order id so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
