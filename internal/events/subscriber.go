package events

// Subscriber follows events published on the bus.
type Subscriber interface {
	// Subscribe returns a channel of messages for topic and a cancel func
	// that ends the subscription and closes the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
