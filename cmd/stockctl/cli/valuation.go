package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// WarehouseValuer values every item of a warehouse.
type WarehouseValuer interface {
	WarehouseValue(ctx context.Context, tenantID, warehouseID int64, method inventory.ValuationMethod) (inventory.AggregateValuation, error)
}

// ValuationCLI prints warehouse valuations.
type ValuationCLI struct {
	valuer WarehouseValuer
}

// NewValuationCLI constructs the command over valuer.
func NewValuationCLI(valuer WarehouseValuer) (*ValuationCLI, error) {
	if valuer == nil {
		return nil, errors.New("valuation cli: valuer required")
	}
	return &ValuationCLI{valuer: valuer}, nil
}

// ValuationOptions defines the flags of the valuation command. An empty
// Method uses the configured default.
type ValuationOptions struct {
	TenantID    int64
	WarehouseID int64
	Method      string
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// ValuationCommand values the warehouse and prints the result. It returns
// the process exit code.
func (c *ValuationCLI) ValuationCommand(ctx context.Context, opts ValuationOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "valuation: -tenant is required and must be positive")
		return 1
	}
	if opts.WarehouseID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "valuation: -warehouse is required and must be positive")
		return 1
	}
	var method inventory.ValuationMethod
	if strings.TrimSpace(opts.Method) != "" {
		parsed, err := inventory.ParseValuationMethod(opts.Method)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "valuation: %v\n", err)
			return 1
		}
		method = parsed
	}
	agg, err := c.valuer.WarehouseValue(ctx, opts.TenantID, opts.WarehouseID, method)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "valuation: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(agg); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "valuation: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderValuationHuman(opts.Stdout, agg)
	return 0
}

func renderValuationHuman(out io.Writer, agg inventory.AggregateValuation) {
	_, _ = fmt.Fprintf(out, "Warehouse %d valuation (%s)\n", agg.WarehouseID, agg.Method)
	if len(agg.Items) == 0 {
		_, _ = fmt.Fprintln(out, "No stock on hand.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "PRODUCT\tQUANTITY\tAVG COST\tVALUE\t")
	for _, item := range agg.Items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", item.ProductID, item.Quantity.String(), item.AverageCost.StringFixed(4), item.Value.StringFixed(2))
	}
	_, _ = fmt.Fprintf(tw, "TOTAL\t%s\t\t%s\t\n", agg.Quantity.String(), agg.Value.StringFixed(2))
	_ = tw.Flush()
	for _, item := range agg.Items {
		if item.UnvaluedQuantity.Sign() > 0 {
			_, _ = fmt.Fprintf(out, "warning: product %d has %s unit(s) beyond the valuation layer limit\n", item.ProductID, item.UnvaluedQuantity.String())
		}
	}
}
