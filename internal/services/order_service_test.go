package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/testutil"
)

type recordingNotifier struct {
	placed    chan models.Order
	cancelled chan string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{placed: make(chan models.Order, 4), cancelled: make(chan string, 4)}
}

func (n *recordingNotifier) NotifyNewOrder(_ context.Context, order models.Order, _ models.Customer) error {
	n.placed <- order
	return nil
}

func (n *recordingNotifier) NotifyOrderCancelled(_ context.Context, _ models.Order, by string) error {
	n.cancelled <- by
	return nil
}

func newOrderService(t *testing.T, settings models.StoreSettings) (*OrderService, *gorm.DB) {
	t.Helper()

	db := testutil.NewDB(t)
	testutil.SaveSettings(t, db, settings)

	log := zap.NewNop()
	svc := NewOrderService(db, NewSettingsService(db, cache.New(nil, ""), log), nil, nil, log)
	return svc, db
}

func defaultSettings() models.StoreSettings {
	return models.StoreSettings{
		DeliveryFee:      decimal.RequireFromString("5.00"),
		FreeDeliveryFrom: decimal.RequireFromString("100.00"),
		MinOrderAmount:   decimal.RequireFromString("10.00"),
		PointsPercent:    5,
		PointsEnabled:    true,
		OrdersEnabled:    true,
	}
}

func stockOf(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()

	var p models.Product
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.Stock
}

func ledger(t *testing.T, db *gorm.DB, customerID uuid.UUID) []models.PointsTransaction {
	t.Helper()

	var rows []models.PointsTransaction
	require.NoError(t, db.Where("customer_id = ?", customerID).Order("occurred_at asc, type asc").Find(&rows).Error)
	return rows
}

func TestPlaceOrder_ComputesTotalsFromCurrentPrices(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000001", 20)
	milk := testutil.CreateProduct(t, db, "Milk", "12.50", 10)
	bread := testutil.CreateProduct(t, db, "Bread", "3.20", 5)

	order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items: []OrderLine{
			{ProductID: milk.ID, Quantity: 2},
			{ProductID: bread.ID, Quantity: 1},
			{ProductID: milk.ID, Quantity: 1},
		},
		PayPoints: 10,
		Address:   "Main st 1",
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 2)
	assert.Equal(t, models.OrderProcessing, order.Status)
	assert.Equal(t, "40.70", order.ItemsTotal.StringFixed(2))
	assert.Equal(t, "5.00", order.DeliveryFee.StringFixed(2))
	assert.Equal(t, "35.70", order.Sum.StringFixed(2))
	// floor((40.70 - 10) * 5 / 100) = floor(1.535)
	assert.Equal(t, 1, order.PointsEarned)
	assert.Equal(t, "+998900000001", order.Phone)

	sum := decimal.Zero
	for _, item := range order.Items {
		sum = sum.Add(item.LineTotal)
	}
	assert.True(t, sum.Equal(order.ItemsTotal))

	assert.Equal(t, 7, stockOf(t, db, milk.ID))
	assert.Equal(t, 4, stockOf(t, db, bread.ID))
	assert.Equal(t, 11, testutil.Reload(t, db, customer).Points)

	rows := ledger(t, db, customer.ID)
	require.Len(t, rows, 2)
	byType := map[string]models.PointsTransaction{}
	for _, r := range rows {
		byType[r.Type] = r
	}
	assert.Equal(t, -10, byType[models.PointsSpend].Points)
	assert.Equal(t, 1, byType[models.PointsEarn].Points)
	assert.Equal(t, 11, byType[models.PointsEarn].Balance)
}

func TestPlaceOrder_FreeDeliveryThreshold(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000002", 0)
	cheese := testutil.CreateProduct(t, db, "Cheese", "50.00", 10)

	order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items:   []OrderLine{{ProductID: cheese.ID, Quantity: 2}},
		Address: "Main st 1",
	})
	require.NoError(t, err)

	assert.True(t, order.DeliveryFee.IsZero())
	assert.Equal(t, "100.00", order.Sum.StringFixed(2))
	assert.Equal(t, 5, order.PointsEarned)
}

func TestPlaceOrder_InsufficientStockRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000003", 50)
	apples := testutil.CreateProduct(t, db, "Apples", "20.00", 10)
	eggs := testutil.CreateProduct(t, db, "Eggs", "15.00", 1)

	_, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items: []OrderLine{
			{ProductID: apples.ID, Quantity: 3},
			{ProductID: eggs.ID, Quantity: 2},
		},
		PayPoints: 5,
		Address:   "Main st 1",
	})

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, eggs.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 10, stockOf(t, db, apples.ID))
	assert.Equal(t, 50, testutil.Reload(t, db, customer).Points)

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrder_StockSoldBetweenPricingAndReserving(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000031", 0)
	flour := testutil.CreateProduct(t, db, "Flour", "9.00", 10)

	// Another checkout takes most of the flour after this order was priced.
	var drained bool
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:drain_stock", func(tx *gorm.DB) {
		if drained || tx.Statement.Table != "products" {
			return
		}
		drained = true
		if _, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
			"UPDATE products SET stock = ? WHERE id = ?", 1, flour.ID); err != nil {
			_ = tx.AddError(err)
		}
	}))

	_, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items:   []OrderLine{{ProductID: flour.ID, Quantity: 3}},
		Address: "Main st 1",
	})
	require.True(t, drained)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, flour.ID, stockErr.ProductID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)

	assert.Equal(t, 10, stockOf(t, db, flour.ID))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrder_RetriesTakenOrderNumber(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	numbers := []string{"261019-000001", "261019-000001", "261019-000001", "261019-000002"}
	svc.numbers = func(time.Time) string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}

	customer := testutil.CreateCustomer(t, db, "+998900000032", 0)
	oats := testutil.CreateProduct(t, db, "Oats", "12.00", 10)
	in := PlaceOrderInput{
		Items:   []OrderLine{{ProductID: oats.ID, Quantity: 1}},
		Address: "Main st 1",
	}

	first, err := svc.PlaceOrder(ctx, customer.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "261019-000001", first.OrderNumber)

	second, err := svc.PlaceOrder(ctx, customer.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "261019-000002", second.OrderNumber)
	assert.Empty(t, numbers)

	assert.Equal(t, 8, stockOf(t, db, oats.ID))

	var items int64
	require.NoError(t, db.Model(&models.OrderItem{}).Where("order_id = ?", second.ID).Count(&items).Error)
	assert.EqualValues(t, 1, items)
}

func TestPlaceOrder_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000004", 5)
	tea := testutil.CreateProduct(t, db, "Tea", "8.00", 10)
	hidden := testutil.CreateProduct(t, db, "Hidden", "8.00", 10)
	require.NoError(t, db.Model(&hidden).Update("is_active", false).Error)

	blocked := testutil.CreateCustomer(t, db, "+998900000005", 0)
	require.NoError(t, db.Model(&blocked).Update("is_blocked", true).Error)

	tests := []struct {
		name     string
		customer uuid.UUID
		in       PlaceOrderInput
		check    func(t *testing.T, err error)
	}{
		{
			name:     "empty",
			customer: customer.ID,
			in:       PlaceOrderInput{Address: "x"},
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyOrder) },
		},
		{
			name:     "zero quantity",
			customer: customer.ID,
			in:       PlaceOrderInput{Items: []OrderLine{{ProductID: tea.ID, Quantity: 0}}, Address: "x"},
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidQuantity) },
		},
		{
			name:     "below minimum",
			customer: customer.ID,
			in:       PlaceOrderInput{Items: []OrderLine{{ProductID: tea.ID, Quantity: 1}}, Address: "x"},
			check: func(t *testing.T, err error) {
				var minErr *MinOrderError
				assert.True(t, errors.As(err, &minErr))
			},
		},
		{
			name:     "more points than balance",
			customer: customer.ID,
			in:       PlaceOrderInput{Items: []OrderLine{{ProductID: tea.ID, Quantity: 2}}, PayPoints: 6, Address: "x"},
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInsufficientPoints) },
		},
		{
			name:     "inactive product",
			customer: customer.ID,
			in:       PlaceOrderInput{Items: []OrderLine{{ProductID: hidden.ID, Quantity: 2}}, Address: "x"},
			check: func(t *testing.T, err error) {
				var unavailable *ProductUnavailableError
				assert.True(t, errors.As(err, &unavailable))
			},
		},
		{
			name:     "blocked customer",
			customer: blocked.ID,
			in:       PlaceOrderInput{Items: []OrderLine{{ProductID: tea.ID, Quantity: 2}}, Address: "x"},
			check:    func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrCustomerBlocked) },
		},
		{
			name:     "missing address",
			customer: customer.ID,
			in:       PlaceOrderInput{Items: []OrderLine{{ProductID: tea.ID, Quantity: 2}}},
			check: func(t *testing.T, err error) {
				var verr *ValidationError
				assert.True(t, errors.As(err, &verr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, tt.customer, tt.in)
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	assert.Equal(t, 10, stockOf(t, db, tea.ID))
}

func TestPlaceOrder_OrdersDisabled(t *testing.T) {
	settings := defaultSettings()
	settings.OrdersEnabled = false
	svc, db := newOrderService(t, settings)

	customer := testutil.CreateCustomer(t, db, "+998900000006", 0)
	tea := testutil.CreateProduct(t, db, "Tea", "80.00", 10)

	_, err := svc.PlaceOrder(context.Background(), customer.ID, PlaceOrderInput{
		Items:   []OrderLine{{ProductID: tea.ID, Quantity: 1}},
		Address: "x",
	})
	require.ErrorIs(t, err, ErrOrdersDisabled)
}

func TestCancelOrder_RestoresStockAndPoints(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000007", 30)
	rice := testutil.CreateProduct(t, db, "Rice", "40.00", 10)

	order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items:     []OrderLine{{ProductID: rice.ID, Quantity: 2}},
		PayPoints: 20,
		Address:   "Main st 1",
	})
	require.NoError(t, err)
	require.Equal(t, 3, order.PointsEarned)
	require.Equal(t, 13, testutil.Reload(t, db, customer).Points)

	cancelled, err := svc.CancelOrder(ctx, order.ID, CancelInput{Reason: "changed my mind", CustomerID: &customer.ID})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, 10, stockOf(t, db, rice.ID))
	assert.Equal(t, 30, testutil.Reload(t, db, customer).Points)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderCancelled, stored.Status)
	assert.Equal(t, "changed my mind", stored.CancelReason)

	types := []string{}
	for _, r := range ledger(t, db, customer.ID) {
		types = append(types, r.Type)
	}
	assert.ElementsMatch(t, []string{models.PointsSpend, models.PointsEarn, models.PointsRefund, models.PointsReverseEarn}, types)

	_, err = svc.CancelOrder(ctx, order.ID, CancelInput{})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelOrder_FloorsBalanceAtZero(t *testing.T) {
	ctx := context.Background()
	settings := defaultSettings()
	settings.PointsPercent = 10
	svc, db := newOrderService(t, settings)

	customer := testutil.CreateCustomer(t, db, "+998900000008", 0)
	oil := testutil.CreateProduct(t, db, "Oil", "50.00", 10)

	order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items:   []OrderLine{{ProductID: oil.ID, Quantity: 1}},
		Address: "Main st 1",
	})
	require.NoError(t, err)
	require.Equal(t, 5, order.PointsEarned)

	require.NoError(t, db.Model(&models.Customer{}).Where("id = ?", customer.ID).Update("points", 2).Error)

	_, err = svc.CancelOrder(ctx, order.ID, CancelInput{})
	require.NoError(t, err)
	assert.Equal(t, 0, testutil.Reload(t, db, customer).Points)

	var reversal models.PointsTransaction
	require.NoError(t, db.Where("type = ?", models.PointsReverseEarn).First(&reversal).Error)
	assert.Equal(t, -2, reversal.Points)
	assert.Equal(t, 0, reversal.Balance)
}

func TestCancelOrder_Rights(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000009", 0)
	other := testutil.CreateCustomer(t, db, "+998900000010", 0)
	flour := testutil.CreateProduct(t, db, "Flour", "30.00", 10)

	place := func() *models.Order {
		order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
			Items:   []OrderLine{{ProductID: flour.ID, Quantity: 1}},
			Address: "Main st 1",
		})
		require.NoError(t, err)
		return order
	}

	order := place()
	_, err := svc.CancelOrder(ctx, order.ID, CancelInput{CustomerID: &other.ID})
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderAccepted, "")
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, order.ID, CancelInput{CustomerID: &customer.ID})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.CancelOrder(ctx, order.ID, CancelInput{Reason: "out of delivery zone"})
	require.NoError(t, err)

	_, err = svc.CancelOrder(ctx, uuid.New(), CancelInput{})
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())

	customer := testutil.CreateCustomer(t, db, "+998900000011", 0)
	sugar := testutil.CreateProduct(t, db, "Sugar", "25.00", 10)

	order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items:   []OrderLine{{ProductID: sugar.ID, Quantity: 1}},
		Address: "Main st 1",
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderFulfilled, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateStatus(ctx, order.ID, "shipped", "")
	require.ErrorIs(t, err, ErrInvalidStatus)

	accepted, err := svc.UpdateStatus(ctx, order.ID, models.OrderAccepted, "")
	require.NoError(t, err)
	assert.NotNil(t, accepted.AcceptedAt)

	fulfilled, err := svc.UpdateStatus(ctx, order.ID, models.OrderFulfilled, "")
	require.NoError(t, err)
	assert.NotNil(t, fulfilled.FulfilledAt)

	_, err = svc.UpdateStatus(ctx, order.ID, models.OrderCancelled, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 9, stockOf(t, db, sugar.ID))
}

func TestOrderService_NotifiesAfterCommit(t *testing.T) {
	ctx := context.Background()
	svc, db := newOrderService(t, defaultSettings())
	notifier := newRecordingNotifier()
	svc.notifier = notifier

	customer := testutil.CreateCustomer(t, db, "+998900000012", 0)
	salt := testutil.CreateProduct(t, db, "Salt", "12.00", 10)

	order, err := svc.PlaceOrder(ctx, customer.ID, PlaceOrderInput{
		Items:   []OrderLine{{ProductID: salt.ID, Quantity: 1}},
		Address: "Main st 1",
	})
	require.NoError(t, err)

	select {
	case got := <-notifier.placed:
		assert.Equal(t, order.OrderNumber, got.OrderNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("new order notification not sent")
	}

	_, err = svc.CancelOrder(ctx, order.ID, CancelInput{CustomerID: &customer.ID})
	require.NoError(t, err)

	select {
	case by := <-notifier.cancelled:
		assert.Equal(t, "customer", by)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel notification not sent")
	}
}

func TestPointsEarned(t *testing.T) {
	s := models.StoreSettings{PointsEnabled: true, PointsPercent: 3}

	assert.Equal(t, 2, PointsEarned(s, decimal.RequireFromString("99.99"), 0))
	assert.Equal(t, 0, PointsEarned(s, decimal.RequireFromString("10"), 10))

	s.PointsEnabled = false
	assert.Equal(t, 0, PointsEarned(s, decimal.RequireFromString("1000"), 0))
}

func TestDeliveryFee(t *testing.T) {
	s := models.StoreSettings{DeliveryFee: decimal.NewFromInt(7)}
	assert.Equal(t, "7", DeliveryFee(s, decimal.NewFromInt(1000)).String())

	s.FreeDeliveryFrom = decimal.NewFromInt(50)
	assert.True(t, DeliveryFee(s, decimal.NewFromInt(50)).IsZero())
	assert.Equal(t, "7", DeliveryFee(s, decimal.NewFromInt(49)).String())
}
