// Package pricing computes the customer quote for an upscale: output
// dimensions, provider credit cost and the marked-up customer price. The
// quote becomes the job's frozen cost snapshot at checkout-creation time and
// is never recomputed afterwards.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/Sarai-Chinwag/sell-my-images/internal/domain"
)

const (
	// megapixelsPerCredit is the provider's billing unit.
	megapixelsPerCredit = 4.0
	// minCustomerPriceCents keeps micro-transactions above the payment
	// provider's practical minimum charge.
	minCustomerPriceCents = 50
)

// UnavailableError reports that a resolution cannot be priced for an image.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string { return "pricing unavailable: " + e.Reason }

// Calculator prices upscale jobs.
type Calculator struct {
	// MarkupPercent is applied on top of the provider cost (550 = 550%).
	MarkupPercent float64
	// CreditPriceCents is the provider's per-credit rate.
	CreditPriceCents int64
	// MaxOutputMegapixels caps what the upscaling provider accepts.
	MaxOutputMegapixels float64
}

// NewCalculator builds a calculator with the configured economics.
func NewCalculator(markupPercent float64, creditPriceCents int64, maxOutputMP float64) *Calculator {
	return &Calculator{
		MarkupPercent:       markupPercent,
		CreditPriceCents:    creditPriceCents,
		MaxOutputMegapixels: maxOutputMP,
	}
}

// Calculate prices one resolution for a source image. Returns an
// *UnavailableError when the image cannot be upscaled at that factor.
func (c *Calculator) Calculate(width, height int, resolution domain.Resolution) (*domain.CostData, error) {
	factor := resolution.Factor()
	if factor == 0 {
		return nil, &UnavailableError{Reason: fmt.Sprintf("unsupported resolution %q", resolution)}
	}
	if width <= 0 || height <= 0 {
		return nil, &UnavailableError{Reason: "image dimensions unknown"}
	}

	outW := width * factor
	outH := height * factor
	outputMP := float64(outW) * float64(outH) / 1_000_000
	if c.MaxOutputMegapixels > 0 && outputMP > c.MaxOutputMegapixels {
		return nil, &UnavailableError{
			Reason: fmt.Sprintf("output %.0fMP exceeds provider limit of %.0fMP", outputMP, c.MaxOutputMegapixels),
		}
	}

	credits := int(math.Ceil(outputMP / megapixelsPerCredit))
	if credits < 1 {
		credits = 1
	}
	providerCents := int64(credits) * c.CreditPriceCents
	customerCents := int64(math.Round(float64(providerCents) * (1 + c.MarkupPercent/100)))
	if customerCents < minCustomerPriceCents {
		customerCents = minCustomerPriceCents
	}

	return &domain.CostData{
		CustomerPriceCents: customerCents,
		ProviderCostCents:  providerCents,
		Credits:            credits,
		OutputWidth:        outW,
		OutputHeight:       outH,
	}, nil
}

// Option is one entry of a per-resolution price list.
type Option struct {
	Resolution   domain.Resolution `json:"resolution"`
	Available    bool              `json:"available"`
	Price        float64           `json:"price,omitempty"`
	OutputWidth  int               `json:"output_width,omitempty"`
	OutputHeight int               `json:"output_height,omitempty"`
	Credits      int               `json:"credits,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

// Options prices every supported resolution, marking unavailable ones with
// their reason instead of failing the whole list.
func (c *Calculator) Options(width, height int) []Option {
	opts := make([]Option, 0, len(domain.ValidResolutions))
	for _, res := range domain.ValidResolutions {
		cost, err := c.Calculate(width, height, res)
		if err != nil {
			reason := "price unavailable"
			var unavailable *UnavailableError
			if errors.As(err, &unavailable) {
				reason = unavailable.Reason
			}
			opts = append(opts, Option{Resolution: res, Available: false, Reason: reason})
			continue
		}
		opts = append(opts, Option{
			Resolution:   res,
			Available:    true,
			Price:        cost.CustomerPrice(),
			OutputWidth:  cost.OutputWidth,
			OutputHeight: cost.OutputHeight,
			Credits:      cost.Credits,
		})
	}
	return opts
}
