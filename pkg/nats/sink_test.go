package nats_test

import (
	"context"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/corebank/pkg/domain"
	"github.com/plaenen/corebank/pkg/nats"
)

func TestSink_PublishRoundTrip(t *testing.T) {
	sink, srv, err := nats.NewEmbeddedSink()
	require.NoError(t, err)
	defer srv.Shutdown()
	defer sink.Close()

	nc, err := nats.ConnectToEmbedded(srv)
	require.NoError(t, err)
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)

	sub, err := js.SubscribeSync("events." + domain.EventTypeMoneyTransferred)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	event := domain.MoneyTransferred{
		EventModel:        domain.NewEventModel(time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)),
		TransactionID:     domain.NewTransactionID(),
		SourceNumber:      "1111111111",
		DestinationNumber: "2222222222",
		Amount:            domain.MustMoney("200", "USD"),
		Reference:         "R1",
		TransferDate:      time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, sink.Publish(context.Background(), event))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	decoded, err := domain.DecodeEvent(domain.EventTypeMoneyTransferred, msg.Data)
	require.NoError(t, err)

	transferred, ok := decoded.(domain.MoneyTransferred)
	require.True(t, ok)
	assert.Equal(t, event.TransactionID, transferred.TransactionID)
	assert.Equal(t, "R1", transferred.Reference)
}

func TestSink_RedeliveryDeduplicatesOnEventID(t *testing.T) {
	sink, srv, err := nats.NewEmbeddedSink()
	require.NoError(t, err)
	defer srv.Shutdown()
	defer sink.Close()

	nc, err := nats.ConnectToEmbedded(srv)
	require.NoError(t, err)
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)

	sub, err := js.SubscribeSync("events." + domain.EventTypeInsufficientFunds)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	event := domain.InsufficientFunds{
		EventModel:    domain.NewEventModel(time.Now()),
		AccountNumber: "1234567890",
		Requested:     domain.MustMoney("100", "USD"),
		Balance:       domain.MustMoney("10", "USD"),
		Operation:     "Transfer",
	}

	// The relay may publish the same message twice; the broker keeps one.
	require.NoError(t, sink.Publish(context.Background(), event))
	require.NoError(t, sink.Publish(context.Background(), event))

	_, err = sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	_, err = sub.NextMsg(500 * time.Millisecond)
	assert.ErrorIs(t, err, natsgo.ErrTimeout)
}
