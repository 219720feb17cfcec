package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/Syed-Nuhad/automart/models"
)

type MockCatalog struct{ mock.Mock }

func (m *MockCatalog) MarkSold(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

type MockReceiptSender struct{ mock.Mock }

func (m *MockReceiptSender) SendReceipt(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}
func (m *MockReceiptSender) SendAdminNotice(ctx context.Context, order *models.Order, adminEmail string) error {
	args := m.Called(ctx, order, adminEmail)
	return args.Error(0)
}

type MockSNSPublisher struct{ mock.Mock }

func (m *MockSNSPublisher) Publish(ctx context.Context, topicArn string, message []byte) error {
	args := m.Called(ctx, topicArn, message)
	return args.Error(0)
}

type dispatcherFixture struct {
	carts    *MockCartStore
	catalog  *MockCatalog
	markers  *MockMarkerStore
	receipts *MockReceiptSender
	events   *MockSNSPublisher
	d        *SideEffectDispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		carts:    new(MockCartStore),
		catalog:  new(MockCatalog),
		markers:  new(MockMarkerStore),
		receipts: new(MockReceiptSender),
		events:   new(MockSNSPublisher),
	}
	f.d = &SideEffectDispatcher{
		Carts:      f.carts,
		CatalogSvc: f.catalog,
		Markers:    f.markers,
		Receipts:   f.receipts,
		Events:     f.events,
		TopicArn:   "arn:aws:sns:eu-west-2:000000000000:payment-events",
		AdminEmail: "staff@automart.test",
		Logger:     zap.NewNop(),
	}
	return f
}

func TestOrderPaid_RunsAllEffects(t *testing.T) {
	f := newDispatcherFixture()
	ctx := context.Background()
	order := testOrder(models.OrderStatusPaid)

	f.carts.On("DeleteCart", ctx, "user-1").Return(nil).Once()
	f.catalog.On("MarkSold", ctx, []string{"car-1", "car-2"}).Return(nil).Once()
	f.markers.On("SetIfAbsent", ctx, "receipt:order:"+order.ID.String(), mock.Anything).Return(true, nil).Once()
	f.receipts.On("SendReceipt", ctx, order).Return(nil).Once()
	f.receipts.On("SendAdminNotice", ctx, order, "staff@automart.test").Return(nil).Once()

	var published []byte
	f.events.On("Publish", ctx, f.d.TopicArn, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil).Once()

	f.d.OrderPaid(ctx, order)

	f.carts.AssertExpectations(t)
	f.catalog.AssertExpectations(t)
	f.receipts.AssertExpectations(t)
	f.events.AssertExpectations(t)

	var event models.PaymentEvent
	assert.NoError(t, json.Unmarshal(published, &event))
	assert.Equal(t, "payment_succeeded", event.Type)
	assert.Equal(t, order.ID.String(), event.OrderID)
	assert.Equal(t, 5000, event.Amount)
}

func TestOrderPaid_ReceiptSentAtMostOnce(t *testing.T) {
	f := newDispatcherFixture()
	ctx := context.Background()
	order := testOrder(models.OrderStatusPaid)

	f.carts.On("DeleteCart", ctx, mock.Anything).Return(nil)
	f.catalog.On("MarkSold", ctx, mock.Anything).Return(nil)
	f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(nil)

	// First dispatch claims the marker, second finds it taken.
	f.markers.On("SetIfAbsent", ctx, "receipt:order:"+order.ID.String(), mock.Anything).Return(true, nil).Once()
	f.markers.On("SetIfAbsent", ctx, "receipt:order:"+order.ID.String(), mock.Anything).Return(false, nil).Once()
	f.receipts.On("SendReceipt", ctx, order).Return(nil).Once()
	f.receipts.On("SendAdminNotice", ctx, order, mock.Anything).Return(nil).Once()

	f.d.OrderPaid(ctx, order)
	f.d.OrderPaid(ctx, order)

	f.receipts.AssertNumberOfCalls(t, "SendReceipt", 1)
}

func TestOrderPaid_EffectFailuresDoNotCascade(t *testing.T) {
	f := newDispatcherFixture()
	ctx := context.Background()
	order := testOrder(models.OrderStatusPaid)

	f.carts.On("DeleteCart", ctx, mock.Anything).Return(errors.New("redis down")).Once()
	f.catalog.On("MarkSold", ctx, mock.Anything).Return(errors.New("db down")).Once()
	f.markers.On("SetIfAbsent", ctx, mock.Anything, mock.Anything).Return(false, errors.New("redis down")).Once()
	f.events.On("Publish", ctx, mock.Anything, mock.Anything).Return(errors.New("sns down")).Once()

	// Must not panic and must still attempt every effect.
	f.d.OrderPaid(ctx, order)

	f.events.AssertNumberOfCalls(t, "Publish", 1)
	f.receipts.AssertNotCalled(t, "SendReceipt", mock.Anything, mock.Anything)
}

func TestOrderFailed_PublishesEventOnly(t *testing.T) {
	f := newDispatcherFixture()
	ctx := context.Background()
	order := testOrder(models.OrderStatusFailed)

	var published []byte
	f.events.On("Publish", ctx, f.d.TopicArn, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil).Once()

	f.d.OrderFailed(ctx, order)

	var event models.PaymentEvent
	assert.NoError(t, json.Unmarshal(published, &event))
	assert.Equal(t, "payment_failed", event.Type)
	f.carts.AssertNotCalled(t, "DeleteCart", mock.Anything, mock.Anything)
	f.catalog.AssertNotCalled(t, "MarkSold", mock.Anything, mock.Anything)
}
