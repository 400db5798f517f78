package rabbitmq

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"catalog/internal/models"

	amqp "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingAcknowledger struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, ack amqp.Acknowledger, tag uint64, appID string, event models.ProductEvent) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, AppId: appID, Body: body}
}

func newTestClient() *Client {
	return &Client{exchange: DefaultExchange, instanceID: "self", logger: zap.NewNop()}
}

func TestHandleDelivery_ForwardsForeignEvents(t *testing.T) {
	c := newTestClient()
	ack := &recordingAcknowledger{}
	event := models.ProductEvent{Type: models.ProductCreated, ProductID: "p1", OccurredAt: time.Now().UTC()}

	var got []models.ProductEvent
	c.handleDelivery(delivery(t, ack, 7, "other", event), func(e models.ProductEvent) error {
		got = append(got, e)
		return nil
	})

	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ProductID)
	assert.Equal(t, []uint64{7}, ack.acked)
}

func TestHandleDelivery_SkipsOwnEvents(t *testing.T) {
	c := newTestClient()
	ack := &recordingAcknowledger{}

	called := false
	c.handleDelivery(delivery(t, ack, 1, "self", models.ProductEvent{Type: models.ProductDeleted}), func(models.ProductEvent) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, []uint64{1}, ack.acked)
}

func TestHandleDelivery_NacksWithoutRequeue(t *testing.T) {
	c := newTestClient()
	ack := &recordingAcknowledger{}

	c.handleDelivery(amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{not json")}, func(models.ProductEvent) error {
		t.Fatal("handler must not run for malformed events")
		return nil
	})
	c.handleDelivery(delivery(t, ack, 3, "other", models.ProductEvent{Type: models.ProductCreated}), func(models.ProductEvent) error {
		return errors.New("refresh failed")
	})

	assert.Equal(t, []uint64{2, 3}, ack.nacked)
	assert.Equal(t, []bool{false, false}, ack.requeue)
	assert.Empty(t, ack.acked)
}

func TestPublishWithoutChannel(t *testing.T) {
	c := newTestClient()

	err := c.PublishProductEvent(models.ProductEvent{Type: models.ProductCreated, ProductID: "p1"})

	assert.Error(t, err)
}
