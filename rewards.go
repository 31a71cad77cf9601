package main

import (
	"strconv"
	"strings"
	"time"
)

// ShareDisplay is the display-ready view of a user's share record.
type ShareDisplay struct {
	Shares           int64   `json:"shares"`
	PercentFormatted string  `json:"percent"`
	EstimatedPayout  string  `json:"estimated_payout"`
	PercentRaw       float64 `json:"percent_raw"`
}

// roundNonce derives the hourly round bucket key for t, formatted
// YYYYMMDDHH. Buckets are computed in UTC so every dashboard instance
// agrees on round boundaries regardless of machine timezone.
func roundNonce(t time.Time) string {
	return t.UTC().Format("2006010215")
}

// shareDisplay converts a raw share record into its display values. The
// stored percent is scaled by 1e6; the UI shows a coarser 1e4-scaled
// percentage at two decimals and a payout estimate against the per-round
// reward.
func shareDisplay(rec ShareRecord, roundRewardCoins float64) ShareDisplay {
	raw := float64(rec.Percent) / sharePercentScale
	payout := raw * roundRewardCoins
	return ShareDisplay{
		Shares:           rec.Shares,
		PercentFormatted: strconv.FormatFloat(float64(rec.Percent)/10000, 'f', 2, 64),
		EstimatedPayout:  amountWithCommas(strconv.FormatFloat(payout, 'f', 8, 64)),
		PercentRaw:       raw,
	}
}

// pendingBalance prorates the current round's wallet snapshots by the
// user's raw share fraction and renders the result in coins. The raw
// fraction is used here, never the formatted display percent; an empty
// round sums to zero.
func pendingBalance(roundAmounts []int64, shareFraction float64) string {
	var sum int64
	for _, amount := range roundAmounts {
		sum += amount
	}
	return formatAtomic(float64(sum) * shareFraction)
}

// humanReadable renders an atomic-unit amount as whole coins at eight
// decimal places.
func humanReadable(amount int64) string {
	return formatAtomic(float64(amount))
}

func formatAtomic(atomic float64) string {
	return amountWithCommas(strconv.FormatFloat(atomic/coinAtomicUnits, 'f', 8, 64))
}

// formatTimestamp renders a millisecond unix timestamp as
// "YYYY-MM-DD, HH:MM" in UTC.
func formatTimestamp(unixMillis int64) string {
	return time.UnixMilli(unixMillis).UTC().Format("2006-01-02, 15:04")
}

// amountWithCommas inserts thousands separators into the integer part of a
// decimal string. The fractional part is left untouched.
func amountWithCommas(s string) string {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	if len(intPart) > 3 {
		var b strings.Builder
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}
	if neg {
		intPart = "-" + intPart
	}
	if hasFrac {
		return intPart + "." + fracPart
	}
	return intPart
}
