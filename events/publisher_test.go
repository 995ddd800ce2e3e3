package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unschooling-payment-service/models"
)

type fakeSNS struct {
	topic string
	body  []byte
	attrs map[string]string
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, topicArn string, message []byte, attributes map[string]string) error {
	f.topic, f.body, f.attrs = topicArn, message, attributes
	return f.err
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() models.PaymentEvent {
	return models.PaymentEvent{
		Type:         models.EventPaymentVerified,
		OrderID:      "order_1",
		UserID:       "user-1",
		PaymentID:    "pay_1",
		PlanType:     "grow",
		BillingCycle: "yearly",
		Status:       "verified",
		Amount:       799000,
		Currency:     "INR",
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSNSPublisher(t *testing.T) {
	fake := &fakeSNS{}
	p := NewSNSPublisher(fake, "arn:topic")

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, "arn:topic", fake.topic)
	assert.Equal(t, models.EventPaymentVerified, fake.attrs["event_type"])

	var got models.PaymentEvent
	require.NoError(t, json.Unmarshal(fake.body, &got))
	assert.Equal(t, int64(799000), got.Amount)
}

func TestKafkaPublisher_KeysByUser(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, topic: "plan-payment-events", logger: zap.NewNop()}

	require.NoError(t, p.Publish(context.Background(), testEvent()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "user-1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestLoggingPublisher_SwallowsErrors(t *testing.T) {
	p := NewLoggingPublisher(NewSNSPublisher(&fakeSNS{err: errors.New("throttled")}, "arn"), zap.NewNop())
	assert.NoError(t, p.Publish(context.Background(), testEvent()))
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &fakeSNS{}
	bad := &fakeSNS{err: errors.New("down")}
	m := Multi{NewSNSPublisher(ok, "a"), NewSNSPublisher(bad, "b")}

	err := m.Publish(context.Background(), testEvent())
	assert.Error(t, err)
	assert.Equal(t, "a", ok.topic)
	assert.NoError(t, NoopPublisher{}.Publish(context.Background(), testEvent()))
}
