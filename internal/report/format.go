// Package report renders outcomes for people: per-item console lines, a
// closing batch summary and the binary size notation both use.
package report

import "fmt"

const (
	kib = 1024
	mib = kib * 1024
	gib = mib * 1024
)

// FormatSize renders n in 1024 multiples with two decimals. Values below
// one KiB are printed as a plain byte count.
func FormatSize(n uint64) string {
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.2f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.2f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// FormatRatio renders a compression ratio, the fraction of bytes saved, as a
// percentage. Negative when the output grew.
func FormatRatio(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}
