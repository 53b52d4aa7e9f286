// Package filter decides which extracted listings are worth persisting.
package filter

import (
	"strings"

	"price_tracker/models"
)

// placeholderTitles are titles the site serves instead of a real listing.
var placeholderTitles = map[string]bool{
	"error page":       true,
	"ebay":             true,
	"ebay home":        true,
	"page not found":   true,
	"security measure": true,
}

var bundleKeywords = []string{"lot", "bundle", "set"}

// ShouldDrop returns the first matching drop reason, or DropNone to keep the listing.
// Rules are checked in a fixed order: page_unavailable, multi_variation,
// multi_figure, bundle.
func ShouldDrop(l *models.ExtractedListing) models.DropReason {
	if l == nil {
		return models.DropPageUnavailable
	}

	title := strings.ToLower(strings.TrimSpace(l.Title))

	if placeholderTitles[title] {
		return models.DropPageUnavailable
	}
	if l.MultiVariation {
		return models.DropMultiVariation
	}
	if strings.Count(l.Title, "#") > 1 {
		return models.DropMultiFigure
	}
	for _, k := range bundleKeywords {
		if strings.Contains(title, k) {
			return models.DropBundle
		}
	}
	return models.DropNone
}

// Keep is shorthand for ShouldDrop(l) == DropNone.
func Keep(l *models.ExtractedListing) bool {
	return ShouldDrop(l) == models.DropNone
}
