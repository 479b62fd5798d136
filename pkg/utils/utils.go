package utils

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

func TruncateString(str string, num int) string {
	r := []rune(str)
	if len(r) <= num {
		return str
	}
	if num <= 3 {
		return string(r[:num])
	}
	return string(r[:num-3]) + "..."
}

// ShortAddress abbreviates an address to its first six and last four
// characters.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// AddCommas groups the integer digits of a decimal string in thousands.
func AddCommas(s string) string {
	intPart, frac, hasFrac := strings.Cut(s, ".")
	sign := ""
	if strings.HasPrefix(intPart, "-") {
		sign, intPart = "-", intPart[1:]
	}
	if len(intPart) <= 3 {
		return s
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func FormatBigFloat(f *big.Float, decimals int) string {
	if f == nil {
		return "0"
	}
	return AddCommas(f.Text('f', decimals))
}

// FormatBalance renders an amount with its unit, or "-" when unknown.
func FormatBalance(f *big.Float, decimals int, unit string) string {
	if f == nil {
		return "-"
	}
	return FormatBigFloat(f, decimals) + " " + unit
}

// TimeAgo renders the time elapsed since t in its largest whole unit.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
