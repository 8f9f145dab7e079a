// Package statement renders an order's installment schedule as a PDF.
package statement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/splitpay/internal/domain"
)

const dateLayout = "Jan 2, 2006"

// Data is everything printed on one statement.
type Data struct {
	Order     domain.Order
	Platform  *domain.Platform
	Payments  []domain.Payment
	Generated time.Time
}

// Renderer produces schedule statements.
type Renderer interface {
	Render(ctx context.Context, data Data) (io.Reader, error)
}

type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(_ context.Context, data Data) (io.Reader, error) {
	if data.Order.ID == "" {
		return nil, errors.New("statement needs an order")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	platformName := data.Order.PlatformID
	if data.Platform != nil && data.Platform.Name != "" {
		platformName = data.Platform.Name
	}
	storeName := "-"
	if data.Order.StoreName != nil && *data.Order.StoreName != "" {
		storeName = *data.Order.StoreName
	}

	m.AddRow(20,
		text.NewCol(8, "Payment schedule", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, "Generated "+data.Generated.Format(dateLayout), props.Text{
			Size:  9,
			Align: align.Right,
			Top:   4,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Order: "+data.Order.ID, props.Text{Top: 0}),
			text.New("Store: "+storeName, props.Text{Top: 5}),
			text.New("Platform: "+platformName, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Status: "+string(data.Order.Status), props.Text{Top: 0, Align: align.Right}),
			text.New("First payment: "+data.Order.FirstPaymentDate.Format(dateLayout), props.Text{Top: 5, Align: align.Right}),
			text.New("Total: "+FormatAmount(data.Order.TotalAmount), props.Text{Top: 10, Align: align.Right, Style: fontstyle.Bold}),
		),
	)

	m.AddRow(10,
		text.NewCol(1, "#", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Due date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Status", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	payments := make([]domain.Payment, len(data.Payments))
	copy(payments, data.Payments)
	sort.Slice(payments, func(i, j int) bool { return payments[i].InstallmentNumber < payments[j].InstallmentNumber })

	var paid, outstanding int64
	for _, p := range payments {
		status := string(p.Status)
		if p.IsManualOverride {
			status += " (pinned)"
		}
		if p.Status == domain.PaymentStatusPaid {
			paid += p.Amount
		} else {
			outstanding += p.Amount
		}
		m.AddRow(8,
			text.NewCol(1, fmt.Sprintf("%d", p.InstallmentNumber), props.Text{Size: 9}),
			text.NewCol(4, p.DueDate.Format(dateLayout), props.Text{Size: 9}),
			text.NewCol(3, status, props.Text{Size: 9}),
			text.NewCol(4, FormatAmount(p.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Paid", props.Text{Size: 9, Top: 3}),
		text.NewCol(2, FormatAmount(paid), props.Text{Size: 9, Top: 3, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, "Outstanding", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, FormatAmount(outstanding), props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

// FormatAmount prints minor currency units with two decimals.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
