package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicName(t *testing.T) {
	assert.Equal(t, "vidly.rental.returned", NewPublisher([]string{"localhost:9092"}, "vidly").TopicName("rental.returned"))
	assert.Equal(t, "rental.returned", NewPublisher([]string{"localhost:9092"}, "").TopicName("rental.returned"))
}
