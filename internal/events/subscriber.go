package events

// Message is one received notification.
type Message struct {
	Topic string
	// Key is the idempotency key header, if the publisher set one.
	Key  string
	Data []byte
}

// Subscriber receives notifications from the bus.
type Subscriber interface {
	// Subscribe delivers messages on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
