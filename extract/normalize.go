package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"price_tracker/models"
)

var (
	inBoxKeywords  = []string{"in box", "with box", "nib", "mib"}
	outBoxKeywords = []string{"loose", "oob", "no box", "out of box", "ex-box"}
	priceRegex     = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// NormalizeCondition maps any condition label mentioning "new" to New, everything else to Used.
func NormalizeCondition(raw string) models.Condition {
	if strings.Contains(strings.ToLower(raw), "new") {
		return models.ConditionNew
	}
	return models.ConditionUsed
}

func IsSigned(title string) bool {
	return strings.Contains(strings.ToLower(title), "signed")
}

// InBox decides packaging. New items are always boxed. For used items the
// title keywords decide, and an ambiguous title counts as boxed.
func InBox(cond models.Condition, title string) bool {
	if cond == models.ConditionNew {
		return true
	}
	lower := strings.ToLower(title)
	in := containsAny(lower, inBoxKeywords)
	out := containsAny(lower, outBoxKeywords)
	if out && !in {
		return false
	}
	return true
}

// ParsePrice reads the first number in text, dropping thousands separators
// and rounding to cents. "US $1,234.50" gives 1234.5.
func ParsePrice(text string) (float64, bool) {
	match := priceRegex.FindString(text)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return math.Round(f*100) / 100, true
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
