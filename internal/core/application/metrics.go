package application

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/zyfty/zyftyd/internal/core/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/zyfty/zyftyd/internal/core/application"

type metrics struct {
	lienPayments metric.Int64Counter
	paidAmount   metric.Int64Counter
	mintedAssets metric.Int64Counter
	listings     metric.Int64Counter
	closedSales  metric.Int64Counter
}

// RegisterMetrics records lien, asset and sale counters from the events saved on repo.
// Counters are created on the given provider, usually the global one installed by telemetry.
func RegisterMetrics(repo domain.EventRepository, provider metric.MeterProvider) {
	meter := provider.Meter(meterName)
	m := &metrics{
		lienPayments: counter(meter, "zyftyd_lien_payments_total", "Lien payments settled"),
		paidAmount: counter(
			meter, "zyftyd_lien_paid_amount_total", "Settlement asset units paid to liens",
		),
		mintedAssets: counter(meter, "zyftyd_assets_minted_total", "Property tokens minted"),
		listings:     counter(meter, "zyftyd_sale_listings_total", "Properties listed for sale"),
		closedSales:  counter(meter, "zyftyd_sales_closed_total", "Sales executed or canceled"),
	}

	repo.RegisterEventsHandler(domain.LienTopic, m.onEvents)
	repo.RegisterEventsHandler(domain.AssetTopic, m.onEvents)
	repo.RegisterEventsHandler(domain.SaleTopic, m.onEvents)
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.WithError(err).Warnf("failed to create %s counter", name)
		return noop.Int64Counter{}
	}
	return c
}

func (m *metrics) onEvents(events []domain.Event) {
	ctx := context.Background()
	for _, event := range events {
		switch e := event.(type) {
		case domain.LienPaid:
			m.lienPaid(ctx, paymentSource(e.Payer), e.Amount)
		case domain.AssetMinted:
			m.mintedAssets.Add(ctx, 1)
		case domain.PropertyListed:
			m.listings.Add(ctx, 1)
		case domain.SaleExecuted:
			m.saleClosed(ctx, "executed")
		case domain.SaleCanceled:
			m.saleClosed(ctx, "canceled")
		}
	}
}

// paymentSource tells sale payoffs and reserve draws apart from payments made by an account.
func paymentSource(payer string) string {
	switch payer {
	case domain.EscrowAccount:
		return "sale"
	case domain.RegistryAccount:
		return "reserve"
	default:
		return "direct"
	}
}

func (m *metrics) lienPaid(ctx context.Context, source string, amount uint64) {
	if amount == 0 {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.lienPayments.Add(ctx, 1, attrs)
	m.paidAmount.Add(ctx, int64(min(amount, uint64(1<<63-1))), attrs)
}

func (m *metrics) saleClosed(ctx context.Context, outcome string) {
	m.closedSales.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
