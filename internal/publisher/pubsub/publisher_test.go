package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

func TestDeliverPublishesEvent(t *testing.T) {
	t.Parallel()

	var got *pubsub.Message
	ch := &Channel{send: func(_ context.Context, msg *pubsub.Message) (string, error) {
		got = msg
		return "msg-1", nil
	}}
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	err := ch.Deliver(context.Background(), harvest.Event{
		Title: "harvest", Description: "2 documents", Severity: harvest.SeverityWarning, At: at,
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "warning", got.Attributes["severity"])

	var body EventMessage
	require.NoError(t, json.Unmarshal(got.Data, &body))
	require.Equal(t, EventMessage{
		Title: "harvest", Description: "2 documents", Severity: "warning", Color: 0xFFA500, At: at,
	}, body)
}

func TestDeliverWrapsPublishErrors(t *testing.T) {
	t.Parallel()

	ch := &Channel{send: func(context.Context, *pubsub.Message) (string, error) {
		return "", errors.New("topic not found")
	}}
	err := ch.Deliver(context.Background(), harvest.Event{})
	require.ErrorIs(t, err, harvest.ErrNotifyFailure)
	require.ErrorContains(t, err, "topic not found")
}

func TestNewRequiresPublisher(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
}
