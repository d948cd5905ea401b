package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/metrics"
	"github.com/example/freshcart/internal/models"
	"github.com/example/freshcart/internal/utils"
)

const notifyTimeout = 15 * time.Second

// OrderNotifier is told about order events after they are committed.
type OrderNotifier interface {
	NotifyNewOrder(ctx context.Context, order models.Order, customer models.Customer) error
	NotifyOrderCancelled(ctx context.Context, order models.Order, by string) error
}

// CustomerPusher delivers a push message to one customer's device.
type CustomerPusher interface {
	NotifyCustomer(ctx context.Context, customerID uuid.UUID, title, body string) error
}

const orderNumberAttempts = 5

// OrderService runs the order placement and cancellation workflow.
type OrderService struct {
	db       *gorm.DB
	settings *SettingsService
	notifier OrderNotifier
	pusher   CustomerPusher
	log      *zap.Logger
	now      func() time.Time
	numbers  func(time.Time) string
}

// NewOrderService constructs OrderService. notifier and pusher may be nil.
func NewOrderService(db *gorm.DB, settings *SettingsService, notifier OrderNotifier, pusher CustomerPusher, log *zap.Logger) *OrderService {
	return &OrderService{
		db:       db,
		settings: settings,
		notifier: notifier,
		pusher:   pusher,
		log:      log,
		now:      time.Now,
		numbers:  generateOrderNumber,
	}
}

// OrderLine is one requested product and quantity.
type OrderLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

// PlaceOrderInput is a customer's checkout request. Prices and totals are
// always taken from the catalog, never from the client.
type PlaceOrderInput struct {
	Items     []OrderLine `json:"items" validate:"required,min=1,dive"`
	PayPoints int         `json:"pay_points" validate:"min=0"`
	Address   string      `json:"address" validate:"max=500"`
	Phone     string      `json:"phone" validate:"max=32"`
	Notes     string      `json:"notes" validate:"max=1000"`
}

// PlaceOrder prices the cart, reserves stock, moves loyalty points and
// stores the order in one transaction.
func (s *OrderService) PlaceOrder(ctx context.Context, customerID uuid.UUID, in PlaceOrderInput) (*models.Order, error) {
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}
	if in.PayPoints < 0 {
		return nil, ErrInvalidPayPoints
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.OrdersEnabled {
		return nil, ErrOrdersDisabled
	}

	var (
		order    models.Order
		customer models.Customer
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&customer, "id = ?", customerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCustomerNotFound
			}
			return err
		}
		if customer.IsBlocked {
			return ErrCustomerBlocked
		}

		items, itemsTotal, err := priceLines(tx, lines)
		if err != nil {
			return err
		}

		if itemsTotal.LessThan(settings.MinOrderAmount) {
			return &MinOrderError{Minimum: settings.MinOrderAmount.StringFixed(2)}
		}

		payPoints := decimal.NewFromInt(int64(in.PayPoints))
		if payPoints.GreaterThan(itemsTotal) {
			return ErrInvalidPayPoints
		}
		if in.PayPoints > customer.Points {
			return ErrInsufficientPoints
		}

		fee := DeliveryFee(settings, itemsTotal)
		now := s.now()

		order = models.Order{
			CustomerID:   customer.ID,
			Status:       models.OrderProcessing,
			ItemsTotal:   itemsTotal,
			DeliveryFee:  fee,
			PayPoints:    in.PayPoints,
			Sum:          itemsTotal.Add(fee).Sub(payPoints),
			PointsEarned: PointsEarned(settings, itemsTotal, in.PayPoints),
			Address:      firstNonEmpty(in.Address, customer.Address),
			Phone:        firstNonEmpty(in.Phone, customer.Phone),
			Notes:        in.Notes,
			PlacedAt:     now,
			Items:        items,
		}
		if order.Address == "" {
			return &ValidationError{Field: "address", Message: "is required"}
		}

		for _, item := range items {
			if err := decrementStock(tx, item); err != nil {
				return err
			}
		}

		if err := s.createOrder(tx, &order); err != nil {
			return err
		}

		if order.PayPoints > 0 {
			if err := debitPoints(tx, customer.ID, order.PayPoints); err != nil {
				return err
			}
			if err := recordPoints(tx, customer.ID, order.ID, models.PointsSpend, -order.PayPoints, now); err != nil {
				return err
			}
		}

		if order.PointsEarned > 0 {
			if err := creditPoints(tx, customer.ID, order.PointsEarned); err != nil {
				return err
			}
			if err := recordPoints(tx, customer.ID, order.ID, models.PointsEarn, order.PointsEarned, now); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersPlaced.Inc()
	s.log.Info("order placed",
		zap.String("order", order.OrderNumber),
		zap.Stringer("customer", customer.ID),
		zap.String("sum", order.Sum.StringFixed(2)),
	)

	if s.notifier != nil {
		placed, buyer := order, customer
		s.afterCommit("notify new order", func(ctx context.Context) error {
			return s.notifier.NotifyNewOrder(ctx, placed, buyer)
		})
	}

	return &order, nil
}

// CancelInput describes who cancels an order and why. A nil CustomerID means
// an admin is cancelling.
type CancelInput struct {
	Reason     string
	CustomerID *uuid.UUID
}

// CancelOrder reverses stock and points movements of an order.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, in CancelInput) (*models.Order, error) {
	by := "admin"
	if in.CustomerID != nil {
		by = "customer"
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if in.CustomerID != nil && order.CustomerID != *in.CustomerID {
			return ErrOrderNotFound
		}
		if !canCancel(order.Status, in.CustomerID != nil) {
			return ErrInvalidTransition
		}

		now := s.now()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(map[string]any{
				"status":        models.OrderCancelled,
				"cancelled_at":  now,
				"cancel_reason": in.Reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		for _, item := range order.Items {
			if item.ProductID == nil {
				continue
			}
			if err := tx.Model(&models.Product{}).
				Where("id = ?", *item.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
				return errors.Wrap(err, "restore stock")
			}
		}

		if order.PayPoints > 0 {
			if err := creditPoints(tx, order.CustomerID, order.PayPoints); err != nil {
				return err
			}
			if err := recordPoints(tx, order.CustomerID, order.ID, models.PointsRefund, order.PayPoints, now); err != nil {
				return err
			}
		}

		if order.PointsEarned > 0 {
			removed, err := reversePoints(tx, order.CustomerID, order.PointsEarned)
			if err != nil {
				return err
			}
			if err := recordPoints(tx, order.CustomerID, order.ID, models.PointsReverseEarn, -removed, now); err != nil {
				return err
			}
		}

		order.Status = models.OrderCancelled
		order.CancelledAt = &now
		order.CancelReason = in.Reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersCancelled.WithLabelValues(by).Inc()
	s.log.Info("order cancelled", zap.String("order", order.OrderNumber), zap.String("by", by))

	cancelled := order
	if s.notifier != nil {
		s.afterCommit("notify cancelled order", func(ctx context.Context) error {
			return s.notifier.NotifyOrderCancelled(ctx, cancelled, by)
		})
	}
	if by == "admin" {
		s.pushStatus(cancelled)
	}

	return &order, nil
}

// UpdateStatus moves an order along processing → accepted → fulfilled.
// Moving to cancelled runs CancelOrder as an admin.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status, reason string) (*models.Order, error) {
	if !validStatus(status) {
		return nil, ErrInvalidStatus
	}
	if status == models.OrderCancelled {
		return s.CancelOrder(ctx, orderID, CancelInput{Reason: reason})
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if !canTransition(order.Status, status) {
			return ErrInvalidTransition
		}

		now := s.now()
		updates := map[string]any{"status": status}
		switch status {
		case models.OrderAccepted:
			updates["accepted_at"] = now
			order.AcceptedAt = &now
		case models.OrderFulfilled:
			updates["fulfilled_at"] = now
			order.FulfilledAt = &now
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, order.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}

		order.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status changed", zap.String("order", order.OrderNumber), zap.String("status", status))
	s.pushStatus(order)
	return &order, nil
}

func (s *OrderService) pushStatus(order models.Order) {
	if s.pusher == nil {
		return
	}

	var body string
	switch order.Status {
	case models.OrderAccepted:
		body = "Your order " + order.OrderNumber + " was accepted and is being prepared."
	case models.OrderFulfilled:
		body = "Your order " + order.OrderNumber + " has been delivered. Enjoy!"
	case models.OrderCancelled:
		body = "Your order " + order.OrderNumber + " was cancelled."
	default:
		return
	}

	s.afterCommit("push order status", func(ctx context.Context) error {
		return s.pusher.NotifyCustomer(ctx, order.CustomerID, "Order update", body)
	})
}

func (s *OrderService) afterCommit(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.log.Warn(what, zap.Error(err))
		}
	}()
}

// DeliveryFee returns the fee for an order of itemsTotal.
func DeliveryFee(settings models.StoreSettings, itemsTotal decimal.Decimal) decimal.Decimal {
	if settings.FreeDeliveryFrom.IsPositive() && itemsTotal.GreaterThanOrEqual(settings.FreeDeliveryFrom) {
		return decimal.Zero
	}
	return settings.DeliveryFee
}

// PointsEarned returns floor((itemsTotal - payPoints) * percent / 100).
func PointsEarned(settings models.StoreSettings, itemsTotal decimal.Decimal, payPoints int) int {
	if !settings.PointsEnabled || settings.PointsPercent <= 0 {
		return 0
	}

	base := itemsTotal.Sub(decimal.NewFromInt(int64(payPoints)))
	if !base.IsPositive() {
		return 0
	}

	return int(base.
		Mul(decimal.NewFromInt(int64(settings.PointsPercent))).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart())
}

func mergeLines(in []OrderLine) ([]OrderLine, error) {
	if len(in) == 0 {
		return nil, ErrEmptyOrder
	}

	index := make(map[uuid.UUID]int, len(in))
	out := make([]OrderLine, 0, len(in))
	for _, line := range in {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if line.ProductID == uuid.Nil {
			return nil, &ProductUnavailableError{ProductID: line.ProductID}
		}
		if i, ok := index[line.ProductID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, line)
	}
	return out, nil
}

func priceLines(tx *gorm.DB, lines []OrderLine) ([]models.OrderItem, decimal.Decimal, error) {
	ids := make([]uuid.UUID, len(lines))
	for i, line := range lines {
		ids[i] = line.ProductID
	}

	var products []models.Product
	if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "load products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok || !p.IsActive {
			return nil, decimal.Zero, &ProductUnavailableError{ProductID: line.ProductID}
		}
		if p.Stock < line.Quantity {
			return nil, decimal.Zero, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: line.Quantity,
			}
		}

		productID := p.ID
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items = append(items, models.OrderItem{
			ProductID: &productID,
			Name:      p.Name,
			Unit:      p.Unit,
			Price:     p.Price,
			Quantity:  line.Quantity,
			LineTotal: lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return items, total, nil
}

func decrementStock(tx *gorm.DB, item models.OrderItem) error {
	res := tx.Model(&models.Product{}).
		Where("id = ? AND stock >= ?", *item.ProductID, item.Quantity).
		UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity))
	if res.Error != nil {
		return errors.Wrap(res.Error, "decrement stock")
	}
	if res.RowsAffected == 0 {
		var p models.Product
		_ = tx.Select("stock").First(&p, "id = ?", *item.ProductID).Error
		return &InsufficientStockError{
			ProductID: *item.ProductID,
			Name:      item.Name,
			Available: p.Stock,
			Requested: item.Quantity,
		}
	}
	return nil
}

func debitPoints(tx *gorm.DB, customerID uuid.UUID, points int) error {
	res := tx.Model(&models.Customer{}).
		Where("id = ? AND points >= ?", customerID, points).
		UpdateColumn("points", gorm.Expr("points - ?", points))
	if res.Error != nil {
		return errors.Wrap(res.Error, "debit points")
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

func creditPoints(tx *gorm.DB, customerID uuid.UUID, points int) error {
	err := tx.Model(&models.Customer{}).
		Where("id = ?", customerID).
		UpdateColumn("points", gorm.Expr("points + ?", points)).Error
	return errors.Wrap(err, "credit points")
}

// reversePoints takes back up to points from the balance without going below
// zero and returns how many were actually removed.
func reversePoints(tx *gorm.DB, customerID uuid.UUID, points int) (int, error) {
	before, err := pointsBalance(tx, customerID)
	if err != nil {
		return 0, err
	}

	if err := tx.Model(&models.Customer{}).
		Where("id = ?", customerID).
		UpdateColumn("points", gorm.Expr("CASE WHEN points >= ? THEN points - ? ELSE 0 END", points, points)).Error; err != nil {
		return 0, errors.Wrap(err, "reverse points")
	}

	after, err := pointsBalance(tx, customerID)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

func pointsBalance(tx *gorm.DB, customerID uuid.UUID) (int, error) {
	var c models.Customer
	if err := tx.Select("id", "points").First(&c, "id = ?", customerID).Error; err != nil {
		return 0, errors.Wrap(err, "load points balance")
	}
	return c.Points, nil
}

func recordPoints(tx *gorm.DB, customerID, orderID uuid.UUID, kind string, points int, at time.Time) error {
	balance, err := pointsBalance(tx, customerID)
	if err != nil {
		return err
	}

	entry := models.PointsTransaction{
		CustomerID: customerID,
		OrderID:    &orderID,
		Type:       kind,
		Points:     points,
		Balance:    balance,
		OccurredAt: at,
	}
	return errors.Wrap(tx.Create(&entry).Error, "record points")
}

func validStatus(status string) bool {
	switch status {
	case models.OrderProcessing, models.OrderAccepted, models.OrderFulfilled, models.OrderCancelled:
		return true
	}
	return false
}

func canTransition(from, to string) bool {
	switch from {
	case models.OrderProcessing:
		return to == models.OrderAccepted || to == models.OrderCancelled
	case models.OrderAccepted:
		return to == models.OrderFulfilled || to == models.OrderCancelled
	}
	return false
}

func canCancel(status string, byCustomer bool) bool {
	if byCustomer {
		return status == models.OrderProcessing
	}
	return canTransition(status, models.OrderCancelled)
}

// createOrder inserts order under a fresh order number, drawing a new one
// when the number is already taken.
func (s *OrderService) createOrder(tx *gorm.DB, order *models.Order) error {
	for attempt := 1; ; attempt++ {
		order.OrderNumber = s.numbers(order.PlacedAt)
		err := tx.Transaction(func(tx *gorm.DB) error {
			return tx.Create(order).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == orderNumberAttempts {
			return errors.Wrap(err, "create order")
		}
		s.log.Warn("order number taken, retrying", zap.String("order", order.OrderNumber))
	}
}

func generateOrderNumber(now time.Time) string {
	code, err := utils.GenerateNumericCode(6)
	if err != nil {
		code = fmt.Sprintf("%06d", now.UnixNano()%1000000)
	}
	return now.Format("060102") + "-" + code
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
