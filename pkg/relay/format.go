// Copyright 2024-2026 Aiku AI

package relay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxPostLength leaves headroom under Discord's 2000-character message
// limit for footers and framing text.
const maxPostLength = 1900

var (
	blankRunPattern   = regexp.MustCompile(`\n\s*\n\s*\n+`)
	horizontalPattern = regexp.MustCompile(`[ \t]+`)
)

// CleanText normalizes source text for a destination post: collapses runs
// of blank lines, squeezes horizontal whitespace, and truncates with an
// ellipsis when the text exceeds the destination limit.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = blankRunPattern.ReplaceAllString(text, "\n\n")
	text = horizontalPattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > maxPostLength {
		// Cut on a rune boundary so the truncated text stays valid UTF-8.
		cut := maxPostLength - 3
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

// mediaPlaceholder is posted when an update carries media but no text.
const mediaPlaceholder = "📎 (attachment)"

// FreeSignalFooter is appended to the free-channel copy of a sampled
// signal so the partial audience knows what it is seeing.
func FreeSignalFooter(signalNumber int64, sampleRate int) string {
	return fmt.Sprintf("\n\n🔓 Free preview — signal #%d. You see 1 in %d signals here; upgrade to VIP for every signal.", signalNumber, sampleRate)
}

// FormatFreeSignal renders a sampled signal for the free channel.
func FormatFreeSignal(text string, signalNumber int64, sampleRate int) string {
	return CleanText(text) + FreeSignalFooter(signalNumber, sampleRate)
}

// FormatVIPRecap frames a weekly recap for the VIP channel.
func FormatVIPRecap(text string) string {
	return "📊 **Weekly Recap**\n\n" + CleanText(text)
}

// FormatFreeRecap frames a weekly recap for the free channel, with the
// upgrade invitation the free audience gets instead of the plain heading.
func FormatFreeRecap(text string) string {
	return "📊 **Weekly Recap** — see what VIP members got this week\n\n" +
		CleanText(text) +
		"\n\n🔓 Want every signal as it happens? Upgrade to VIP."
}

// SignalInfo holds the structured fields extracted from a signal text.
// Missing fields are zero values.
type SignalInfo struct {
	Symbol     string
	Action     string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

var symbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(EUR/USD|GBP/USD|USD/JPY|USD/CHF|AUD/USD|USD/CAD|NZD/USD)\b`),
	regexp.MustCompile(`\b(EUR/GBP|EUR/JPY|GBP/JPY|CHF/JPY|AUD/JPY|CAD/JPY)\b`),
	regexp.MustCompile(`\b(XAU/USD|XAG/USD|WTI|BRENT)\b`),
	regexp.MustCompile(`\b([A-Z]{3}/[A-Z]{3})\b`),
}

var (
	buyPattern        = regexp.MustCompile(`\b(BUY|LONG)\b`)
	sellPattern       = regexp.MustCompile(`\b(SELL|SHORT)\b`)
	entryPricePattern = regexp.MustCompile(`\b(?:ENTRY|BUY|SELL)[\s:@]*([0-9]+\.?[0-9]*)\b`)
	slPricePattern    = regexp.MustCompile(`\b(?:SL|STOP[\s\-]?LOSS)[\s:@]*([0-9]+\.?[0-9]*)\b`)
	tpPricePattern    = regexp.MustCompile(`\b(?:TP|TAKE[\s\-]?PROFIT)[\s:@]*([0-9]+\.?[0-9]*)\b`)
)

// ExtractSignalInfo parses symbol, direction and price levels out of a
// trading-signal text. Best effort: unparseable fields stay zero.
func ExtractSignalInfo(text string) SignalInfo {
	upper := strings.ToUpper(text)
	var info SignalInfo

	for _, p := range symbolPatterns {
		if m := p.FindStringSubmatch(upper); m != nil {
			info.Symbol = m[1]
			break
		}
	}

	switch {
	case buyPattern.MatchString(upper):
		info.Action = "BUY"
	case sellPattern.MatchString(upper):
		info.Action = "SELL"
	}

	info.Entry = firstPrice(upper, entryPricePattern)
	info.StopLoss = firstPrice(upper, slPricePattern)
	info.TakeProfit = firstPrice(upper, tpPricePattern)
	return info
}

func firstPrice(text string, p *regexp.Regexp) float64 {
	m := p.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}
