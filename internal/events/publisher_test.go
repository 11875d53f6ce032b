package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherCloseIsIdempotent(t *testing.T) {
	p := NewPublisher(PublisherConfig{
		Brokers:  []string{"localhost:9092"},
		Topic:    "harvester.runs.v1",
		ClientID: "harvester-test",
	}, nil)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestPublishAfterCloseFails(t *testing.T) {
	p := NewPublisher(PublisherConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "harvester.runs.v1",
	}, nil)
	require.NoError(t, p.Close())

	err := p.PublishRunCompleted(context.Background(), RunCompleted{RunID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
