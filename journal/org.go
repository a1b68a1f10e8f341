package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatFillOrg renders a fill as an Org-mode entry: the facts go in a
// PROPERTIES drawer and a Notes heading is left for review.
func FormatFillOrg(f Fill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s (%s)\n", strings.ToUpper(f.Side), f.Symbol, shortID(f.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", f.ID)
	fmt.Fprintf(&b, ":ORDER_ID: %s\n", f.OrderID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", f.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", f.Side)
	fmt.Fprintf(&b, ":QTY: %g\n", f.Qty)
	fmt.Fprintf(&b, ":PRICE: %.4f\n", f.Price)
	if f.Side == "sell" {
		fmt.Fprintf(&b, ":LOT: %.4f\n", f.Lot)
		fmt.Fprintf(&b, ":PNL: %.2f\n", f.PnL)
	}
	fmt.Fprintf(&b, ":TIME: %s\n", f.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":REASON: %s\n", f.Reason)
	b.WriteString(":END:\n")
	b.WriteString("\n*** Notes\n- \n")
	return b.String()
}

// FormatFillsOrg renders fills separated by blank lines, followed by a
// realized summary when any fill was a sell.
func FormatFillsOrg(fills []Fill) string {
	var b strings.Builder
	for i, f := range fills {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatFillOrg(f))
	}
	if r := Summarize(fills); r.Sells > 0 {
		b.WriteString("\n")
		b.WriteString(FormatRealizedOrg(r))
	}
	return b.String()
}

func FormatRealizedOrg(r Realized) string {
	var b strings.Builder
	b.WriteString("** Realized\n")
	b.WriteString("| fills | sells | wins | losses | gross profit | gross loss | net | profit factor |\n")
	b.WriteString("|-------+-------+------+--------+--------------+------------+-----+---------------|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.2f | %.2f | %.2f | %.2f |\n",
		r.Fills, r.Sells, r.Wins, r.Losses, r.GrossProfit, r.GrossLoss, r.Net, r.ProfitFactor())
	return b.String()
}

// FormatAccountOrg renders account snapshots as an Org table.
func FormatAccountOrg(snaps []AccountSnapshot) string {
	var b strings.Builder
	b.WriteString("| time | value | available | note |\n")
	b.WriteString("|------+-------+-----------+------|\n")
	for _, s := range snaps {
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %s |\n",
			s.Time.UTC().Format(time.RFC3339), s.Value, s.Available, s.Note)
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
