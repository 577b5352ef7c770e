// Package fees computes settlement deductions. All arithmetic is fixed-point
// decimal; rounding happens once, at the final net amount, so error never
// compounds across the thousands of transactions in a batch.
package fees

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Breakdown is the fee split for a single gross amount.
type Breakdown struct {
	ProcessingFee decimal.Decimal
	GST           decimal.Decimal
	Net           decimal.Decimal
}

// Calculate returns the processing fee, GST and net settlement amount for a
// gross transaction amount under the given percentage rates.
//
//	fee = gross × feePct/100
//	gst = fee × gstPct/100
//	net = round2(gross − fee − gst)   (round half up)
func Calculate(gross, feePct, gstPct decimal.Decimal) Breakdown {
	fee := gross.Mul(feePct).Div(hundred)
	gst := fee.Mul(gstPct).Div(hundred)
	net := gross.Sub(fee).Sub(gst).Round(2)
	return Breakdown{
		ProcessingFee: fee,
		GST:           gst,
		Net:           net,
	}
}

// TotalDeduction is the combined fee plus GST.
func (b Breakdown) TotalDeduction() decimal.Decimal {
	return b.ProcessingFee.Add(b.GST)
}
