package amqp10

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_QueueName(t *testing.T) {
	cfg := Config{
		ClientName:   "kaijs",
		SubscriberID: "sub1",
		Topic:        "VirtualTopic.eng.ci.brew-build.test.complete",
		PrefetchSize: 10,
	}
	require.Equal(t,
		"Consumer.kaijs.sub1.VirtualTopic.eng.ci.brew-build.test.complete?consumer.prefetchSize=10",
		cfg.queueName(),
	)
}
