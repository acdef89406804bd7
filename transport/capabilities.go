package transport

// Capabilities describes what a broker guarantees for request/reply traffic.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// SharedServiceInbox indicates that replicas of one service compete for
	// messages on the service inbox, so a request reaches exactly one instance.
	// When false every replica receives requests addressed to the service.
	SharedServiceInbox bool

	// Durable indicates queued envelopes survive a consumer restart.
	Durable bool

	// SupportsOrdering indicates envelopes on one inbox arrive in publish order.
	SupportsOrdering bool

	// SupportsTracing indicates metadata (and with it trace context) reaches the consumer.
	SupportsTracing bool

	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment (redelivery).
	SupportsNack bool

	// MaxMessageSize is the maximum body size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a body of size bytes can be carried.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport. Every
	// subscriber of a topic receives each message.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// KafkaCapabilities for Apache Kafka with one consumer group per service.
	KafkaCapabilities = Capabilities{
		Name:               "kafka",
		SharedServiceInbox: true,
		Durable:            true,
		SupportsOrdering:   true,
		SupportsTracing:    true,
		SupportsAck:        true,
		MaxMessageSize:     1048576, // Default 1MB
	}

	// RabbitMQCapabilities for RabbitMQ with one durable queue per inbox.
	RabbitMQCapabilities = Capabilities{
		Name:               "rabbitmq",
		SharedServiceInbox: true,
		Durable:            true,
		SupportsOrdering:   true,
		SupportsTracing:    true,
		SupportsAck:        true,
		SupportsNack:       true,
	}

	// NATSCapabilities for NATS Core with queue groups per inbox.
	NATSCapabilities = Capabilities{
		Name:               "nats",
		SharedServiceInbox: true,
		SupportsTracing:    true,
		MaxMessageSize:     1048576, // Default 1MB
	}

	// AWSCapabilities for AWS SNS/SQS with one queue per inbox.
	AWSCapabilities = Capabilities{
		Name:               "aws",
		SharedServiceInbox: true,
		Durable:            true,
		SupportsTracing:    true,
		SupportsAck:        true,
		SupportsNack:       true,
		MaxMessageSize:     262144, // 256KB
	}

	// HTTPCapabilities for the HTTP webhook transport.
	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Returns a Capabilities value carrying only the name if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
