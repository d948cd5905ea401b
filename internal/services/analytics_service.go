package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/example/freshcart/internal/cache"
	"github.com/example/freshcart/internal/models"
)

const (
	summaryCacheKey = "analytics:summary"
	summaryCacheTTL = time.Minute

	// LowStockThreshold marks active products that are about to run out.
	LowStockThreshold = 5

	defaultSeriesDays = 30
	maxSeriesDays     = 365
)

// AnalyticsService aggregates dashboard figures.
type AnalyticsService struct {
	db    *gorm.DB
	cache *cache.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewAnalyticsService constructs AnalyticsService.
func NewAnalyticsService(db *gorm.DB, store *cache.Store, log *zap.Logger) *AnalyticsService {
	return &AnalyticsService{db: db, cache: store, log: log, now: time.Now}
}

// Summary is the dashboard headline block.
type Summary struct {
	Customers      int64            `json:"customers"`
	Products       int64            `json:"products"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	Revenue        decimal.Decimal  `json:"revenue"`
	TodayRevenue   decimal.Decimal  `json:"today_revenue"`
	TodayOrders    int64            `json:"today_orders"`
	LowStock       int64            `json:"low_stock"`
	WaitlistTotal  int64            `json:"waitlist_total"`
}

// Summary runs the headline queries concurrently.
func (s *AnalyticsService) Summary(ctx context.Context) (*Summary, error) {
	var cached Summary
	if s.cache.Get(ctx, summaryCacheKey, &cached) {
		return &cached, nil
	}

	out := Summary{OrdersByStatus: map[string]int64{
		models.OrderProcessing: 0,
		models.OrderAccepted:   0,
		models.OrderFulfilled:  0,
		models.OrderCancelled:  0,
	}}
	startOfDay := truncateDay(s.now())

	g, gctx := errgroup.WithContext(ctx)
	db := func() *gorm.DB { return s.db.WithContext(gctx) }

	g.Go(func() error {
		return db().Model(&models.Customer{}).Count(&out.Customers).Error
	})
	g.Go(func() error {
		return db().Model(&models.Product{}).Count(&out.Products).Error
	})
	g.Go(func() error {
		var rows []struct {
			Status string
			Count  int64
		}
		if err := db().Model(&models.Order{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			out.OrdersByStatus[r.Status] = r.Count
		}
		return nil
	})
	g.Go(func() error {
		return db().Model(&models.Order{}).
			Select("COALESCE(SUM(sum), 0)").
			Where("status <> ?", models.OrderCancelled).
			Row().Scan(&out.Revenue)
	})
	g.Go(func() error {
		return db().Model(&models.Order{}).
			Select("COALESCE(SUM(sum), 0), COUNT(*)").
			Where("status <> ? AND placed_at >= ?", models.OrderCancelled, startOfDay).
			Row().Scan(&out.TodayRevenue, &out.TodayOrders)
	})
	g.Go(func() error {
		return db().Model(&models.Product{}).
			Where("is_active = ? AND stock <= ?", true, LowStockThreshold).
			Count(&out.LowStock).Error
	})
	g.Go(func() error {
		return db().Model(&models.Product{}).
			Select("COALESCE(SUM(waitlist), 0)").
			Row().Scan(&out.WaitlistTotal)
	})

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "summary")
	}

	if err := s.cache.Set(ctx, summaryCacheKey, out, summaryCacheTTL); err != nil {
		s.log.Warn("cache summary", zap.Error(err))
	}
	return &out, nil
}

// DayPoint is one day of the sales series.
type DayPoint struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

// SalesSeries returns revenue and order count for each of the last days,
// oldest first, including days without sales.
func (s *AnalyticsService) SalesSeries(ctx context.Context, days int) ([]DayPoint, error) {
	if days <= 0 {
		days = defaultSeriesDays
	}
	if days > maxSeriesDays {
		days = maxSeriesDays
	}

	today := truncateDay(s.now())
	start := today.AddDate(0, 0, -(days - 1))

	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Select("placed_at", "sum").
		Where("status <> ? AND placed_at >= ?", models.OrderCancelled, start).
		Find(&orders).Error; err != nil {
		return nil, errors.Wrap(err, "load orders")
	}

	points := make([]DayPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		points[i] = DayPoint{Date: date, Revenue: decimal.Zero}
		index[date] = i
	}

	for _, o := range orders {
		i, ok := index[o.PlacedAt.In(today.Location()).Format(time.DateOnly)]
		if !ok {
			continue
		}
		points[i].Revenue = points[i].Revenue.Add(o.Sum)
		points[i].Orders++
	}

	return points, nil
}

// TopProduct is a best seller row.
type TopProduct struct {
	ProductID *uuid.UUID      `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// TopProducts ranks products by quantity sold in orders that were not cancelled.
func (s *AnalyticsService) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	var rows []TopProduct
	if err := s.db.WithContext(ctx).
		Table("order_items").
		Select("order_items.product_id, MAX(order_items.name) AS name, SUM(order_items.quantity) AS quantity, SUM(order_items.line_total) AS revenue").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status <> ?", models.OrderCancelled).
		Group("order_items.product_id").
		Order("quantity DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "top products")
	}
	return rows, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
