package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	domain "github.com/glowmane/api/internal/domain"
	"github.com/glowmane/api/internal/platform/storage"
	"github.com/glowmane/api/internal/repositories"
)

const (
	reportPageSize        = 200
	defaultTopProductsCap = 10
)

var (
	// ErrReportInvalidInput indicates an invalid report request.
	ErrReportInvalidInput = errors.New("report service: invalid input")
	// ErrReportUnavailable indicates the order backend or export bucket cannot serve the request.
	ErrReportUnavailable = errors.New("report service: unavailable")
)

// ReportUploader writes a finished export object to Cloud Storage.
type ReportUploader interface {
	Upload(ctx context.Context, bucket string, object string, contentType string, data []byte) error
}

// ReportServiceDeps bundles constructor inputs for the reporting service.
type ReportServiceDeps struct {
	Orders       repositories.OrderRepository
	Uploader     ReportUploader
	ExportBucket string
	Currency     string
	Clock        func() time.Time
}

type reportService struct {
	orders       repositories.OrderRepository
	uploader     ReportUploader
	exportBucket string
	currency     string
	clock        func() time.Time
}

// NewReportService constructs the sales reporting service.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Orders == nil {
		return nil, errors.New("report service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	currency := deps.Currency
	if currency == "" {
		currency = "EUR"
	}
	return &reportService{
		orders:       deps.Orders,
		uploader:     deps.Uploader,
		exportBucket: deps.ExportBucket,
		currency:     currency,
		clock:        func() time.Time { return clock().UTC() },
	}, nil
}

// Revenue sums pricing lines over the period. Cancelled orders are excluded,
// everything else counts from the moment it was placed.
func (s *reportService) Revenue(ctx context.Context, dateRange domain.DateRange) (RevenueReport, error) {
	report := RevenueReport{
		Currency: s.currency,
		From:     dateRange.From,
		To:       dateRange.To,
	}
	err := s.forEachOrder(ctx, dateRange, func(order domain.Order) {
		if order.FulfillmentState == domain.FulfillmentCancelled {
			return
		}
		report.OrderCount++
		report.GrossTotal += order.Pricing.Total
		report.TaxTotal += order.Pricing.Tax
		report.ShippingSum += order.Pricing.Shipping
		report.DiscountSum += order.Pricing.Discount
	})
	if err != nil {
		return RevenueReport{}, err
	}
	report.NetTotal = report.GrossTotal - report.TaxTotal
	return report, nil
}

// TopProducts ranks products by units sold over the period.
func (s *reportService) TopProducts(ctx context.Context, dateRange domain.DateRange, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = defaultTopProductsCap
	}

	sales := make(map[string]*ProductSales)
	err := s.forEachOrder(ctx, dateRange, func(order domain.Order) {
		if order.FulfillmentState == domain.FulfillmentCancelled {
			return
		}
		for _, line := range order.Lines {
			entry, ok := sales[line.ProductID]
			if !ok {
				entry = &ProductSales{ProductID: line.ProductID, Name: line.Name}
				sales[line.ProductID] = entry
			}
			entry.Quantity += line.Quantity
			entry.Revenue += line.TotalPrice
		}
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]ProductSales, 0, len(sales))
	for _, entry := range sales {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Quantity != ranked[j].Quantity {
			return ranked[i].Quantity > ranked[j].Quantity
		}
		return ranked[i].Revenue > ranked[j].Revenue
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// ExportOrdersCSV writes one row per order in the period to the export bucket
// and returns the object reference.
func (s *reportService) ExportOrdersCSV(ctx context.Context, dateRange domain.DateRange) (ExportResult, error) {
	if s.uploader == nil || s.exportBucket == "" {
		return ExportResult{}, fmt.Errorf("%w: export bucket is not configured", ErrReportUnavailable)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{
		"order_number", "created_at", "status", "payment_state", "fulfillment_state",
		"customer_id", "currency", "subtotal", "shipping", "discount", "tax", "total",
	}
	if err := writer.Write(header); err != nil {
		return ExportResult{}, fmt.Errorf("%w: %s", ErrReportUnavailable, err.Error())
	}

	rows := 0
	err := s.forEachOrder(ctx, dateRange, func(order domain.Order) {
		record := []string{
			order.OrderNumber,
			order.CreatedAt.UTC().Format(time.RFC3339),
			string(order.Status()),
			string(order.PaymentState),
			string(order.FulfillmentState),
			order.CustomerID,
			order.Pricing.Currency,
			formatAmount(order.Pricing.Subtotal),
			formatAmount(order.Pricing.Shipping),
			formatAmount(order.Pricing.Discount),
			formatAmount(order.Pricing.Tax),
			formatAmount(order.Pricing.Total),
		}
		if err := writer.Write(record); err == nil {
			rows++
		}
	})
	if err != nil {
		return ExportResult{}, err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return ExportResult{}, fmt.Errorf("%w: %s", ErrReportUnavailable, err.Error())
	}

	now := s.clock()
	object, err := storage.BuildObjectPath(storage.PurposeOrdersExport, storage.PathParams{
		ExportStamp: now.Format("20060102T150405Z"),
	})
	if err != nil {
		return ExportResult{}, fmt.Errorf("%w: %s", ErrReportUnavailable, err.Error())
	}
	if err := s.uploader.Upload(ctx, s.exportBucket, object, "text/csv", buf.Bytes()); err != nil {
		return ExportResult{}, fmt.Errorf("%w: %s", ErrReportUnavailable, err.Error())
	}

	return ExportResult{
		Bucket:      s.exportBucket,
		ObjectPath:  object,
		RowCount:    rows,
		GeneratedAt: now,
	}, nil
}

// forEachOrder pages through the order repository applying fn to every order
// in the range.
func (s *reportService) forEachOrder(ctx context.Context, dateRange domain.DateRange, fn func(domain.Order)) error {
	filter := repositories.OrderListFilter{
		DateRange: dateRange,
		Pagination: domain.Pagination{
			PageSize: reportPageSize,
		},
	}
	for {
		page, err := s.orders.List(ctx, filter)
		if err != nil {
			return s.translateRepoError(err)
		}
		for _, order := range page.Items {
			fn(order)
		}
		if page.NextPageToken == "" {
			return nil
		}
		filter.Pagination.PageToken = page.NextPageToken
	}
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func (s *reportService) translateRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %s", ErrReportUnavailable, repoErr.Error())
	}
	return fmt.Errorf("%w: %s", ErrReportUnavailable, err.Error())
}
