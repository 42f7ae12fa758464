// Copyright 2024-2026 Aiku AI

package relay

import (
	"regexp"
	"strings"
)

// Category is the closed set of message classes the router dispatches on.
type Category string

const (
	CategoryTradingSignal     Category = "trading_signal"
	CategorySignalUpdate      Category = "signal_update"
	CategoryWeeklyRecap       Category = "weekly_recap"
	CategoryAdminAnnouncement Category = "admin_announcement"
	CategoryMarketCommentary  Category = "market_commentary"
	CategoryAnalysisVideo     Category = "analysis_video"
	CategoryChartPreview      Category = "chart_preview"
	CategoryVoiceMessage      Category = "voice_message"
	CategoryVideoContent      Category = "video_content"
	CategoryImageContent      Category = "image_content"
	CategoryOther             Category = "other"
)

// Classification is the result of classifying one message.
type Classification struct {
	Category   Category
	Confidence float64
}

// signalPatterns are the distinct syntax markers of a trading signal. A
// message must match at least two of them to classify as a signal, which
// keeps casual mentions of "buy" or a lone price out of the signal path.
var signalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(buy|sell|long|short)\b[^\n]*\d`),
	regexp.MustCompile(`(?i)\b(tp|take[\s\-]?profit)\b[\s:@]*\d`),
	regexp.MustCompile(`(?i)\b(sl|stop[\s\-]?loss)\b[\s:@]*\d`),
	regexp.MustCompile(`(?i)\b(entry|enter)\b[\s:@]*(at\s*)?\d`),
	regexp.MustCompile(`(?i)#[a-z]{3,10}\b|\b[A-Z]{3}/[A-Z]{3}\b|\bXAU/USD\b`),
}

// signalThreshold is the minimum number of distinct signal patterns that
// must match before a message is treated as a trading signal.
const signalThreshold = 2

var recapPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwin[\s\-]?rate\b`),
	regexp.MustCompile(`(?i)\btotal\s+trades\b`),
	regexp.MustCompile(`(?i)\bpips?\s+(gained|total|profit)\b`),
	regexp.MustCompile(`(?i)\bweekly\b[^\n]*\brecap\b`),
	regexp.MustCompile(`(?i)\bweek\b[^\n]*\bperformance\b`),
}

var announcementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bimportant\s+(information|announcement|notice)\b`),
	regexp.MustCompile(`(?i)\battention\s+traders\b`),
	regexp.MustCompile(`(?i)\bno\s+(signals?|trades?)\s+(today|tomorrow|this week)\b`),
	regexp.MustCompile(`(?i)\b(away|offline|on holiday|on vacation)\b`),
	regexp.MustCompile(`(?i)\b(server|service|platform)\s+(maintenance|outage|issues?)\b`),
}

var updatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(tp|take[\s\-]?profit|sl|stop[\s\-]?loss|target)\s*\d?\s*hit\b`),
	regexp.MustCompile(`(?i)\bclosed?\b[^\n]*\b(trade|signal|position|profit|loss)\b`),
	regexp.MustCompile(`(?i)\bpartials?\b`),
	regexp.MustCompile(`(?i)\bbreak[\s\-]?even\b`),
	regexp.MustCompile(`(?i)[+\-]\s?\d+\s*pips?\b`),
	regexp.MustCompile(`(?i)\b(move|moved|adjust|adjusted)\b[^\n]*\b(sl|stop[\s\-]?loss)\b`),
	regexp.MustCompile(`✅`),
}

var greetingPattern = regexp.MustCompile(`(?i)\bgood\s+(morning|afternoon|evening)\b|\bhappy\s+(monday|friday)\b`)

var sessionPattern = regexp.MustCompile(`(?i)\b(london|new york|ny|asian|tokyo)\s+session\b|\bmarket\s+(open|opens|close|closes)\b|\btrading\s+(day|week)\b`)

var analysisVocabPattern = regexp.MustCompile(`(?i)\banalysis\b|\bdaily\b[^\n]*\breview\b|\bmarket\b[^\n]*\bupdate\b`)

// sixDigitDatePattern matches compact dates like "210825" used as titles on
// daily analysis videos.
var sixDigitDatePattern = regexp.MustCompile(`\b\d{6}\b`)

var chartVocabPattern = regexp.MustCompile(`(?i)\bchart\b|\bsetup\b|\btechnical\b|\bsupport\b|\bresistance\b|\btrend\s?line\b`)

// Classify assigns a category to a message based on its text and media kind.
// It is pure and total: identical input always yields the same result, and
// the fallback is CategoryOther with zero confidence. Rules are evaluated in
// order and the first match wins; the caller is expected to filter out
// events with no text and no media before calling.
func Classify(text string, media MediaKind) Classification {
	matches := 0
	for _, p := range signalPatterns {
		if p.MatchString(text) {
			matches++
		}
	}
	if matches >= signalThreshold {
		return Classification{
			Category:   CategoryTradingSignal,
			Confidence: float64(matches) / float64(len(signalPatterns)),
		}
	}

	if matchesAny(text, recapPatterns) {
		return Classification{Category: CategoryWeeklyRecap, Confidence: 0.9}
	}

	// Announcements are checked before updates so that operational notices
	// containing words like "update" are not routed as signal updates.
	if matchesAny(text, announcementPatterns) {
		return Classification{Category: CategoryAdminAnnouncement, Confidence: 0.9}
	}

	if matchesAny(text, updatePatterns) {
		return Classification{Category: CategorySignalUpdate, Confidence: 0.8}
	}

	if greetingPattern.MatchString(text) && sessionPattern.MatchString(text) {
		return Classification{Category: CategoryMarketCommentary, Confidence: 0.7}
	}

	// No text rule matched; fall back on the media kind.
	switch media {
	case MediaVoice:
		return Classification{Category: CategoryVoiceMessage, Confidence: 1.0}
	case MediaVideo:
		if sixDigitDatePattern.MatchString(text) || analysisVocabPattern.MatchString(text) {
			return Classification{Category: CategoryAnalysisVideo, Confidence: 0.8}
		}
		return Classification{Category: CategoryVideoContent, Confidence: 0.6}
	case MediaImage:
		if strings.TrimSpace(text) == "" || chartVocabPattern.MatchString(text) {
			return Classification{Category: CategoryChartPreview, Confidence: 0.8}
		}
		return Classification{Category: CategoryImageContent, Confidence: 0.6}
	}

	return Classification{Category: CategoryOther, Confidence: 0}
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
