package config

// BrokerConfig holds RabbitMQ settings for the domain event bus.
type BrokerConfig struct {
	URL               string
	Exchange          string
	NotificationQueue string
	ConsumerEnabled   bool
	Prefetch          int
}

// LoadBrokerConfig reads RABBITMQ_URL (or AMQP_URL) and the exchange and
// queue names.  An empty URL disables publishing.
func LoadBrokerConfig() BrokerConfig {
	url := envStr("RABBITMQ_URL", envStr("AMQP_URL", ""))
	return BrokerConfig{
		URL:               url,
		Exchange:          envStr("RABBITMQ_EXCHANGE", "eventflow.events"),
		NotificationQueue: envStr("RABBITMQ_NOTIFICATION_QUEUE", "eventflow.notifications"),
		ConsumerEnabled:   envBool("NOTIFICATION_CONSUMER_ENABLED", url != ""),
		Prefetch:          envInt("RABBITMQ_PREFETCH", 50),
	}
}
