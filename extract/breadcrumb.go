package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type ldNode struct {
	Type            json.RawMessage `json:"@type"`
	ItemListElement []struct {
		Name string          `json:"name"`
		Item json.RawMessage `json:"item"`
	} `json:"itemListElement"`
	Graph []json.RawMessage `json:"@graph"`
}

// Breadcrumb joins the JSON-LD BreadcrumbList names with " > ", leaving out
// the site root. Default "".
func Breadcrumb(doc *goquery.Document) string {
	var out string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if path, ok := breadcrumbFromJSON([]byte(s.Text())); ok {
			out = path
			return false
		}
		return true
	})
	return out
}

func breadcrumbFromJSON(data []byte) (string, bool) {
	var nodes []json.RawMessage
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &nodes); err != nil {
			return "", false
		}
	} else {
		nodes = []json.RawMessage{data}
	}

	for _, raw := range nodes {
		var node ldNode
		if err := json.Unmarshal(raw, &node); err != nil {
			continue
		}
		if len(node.Graph) > 0 {
			for _, g := range node.Graph {
				if path, ok := breadcrumbFromJSON(g); ok {
					return path, true
				}
			}
		}
		if !hasType(node.Type, "BreadcrumbList") {
			continue
		}

		var names []string
		for _, el := range node.ItemListElement {
			name := strings.TrimSpace(el.Name)
			if name == "" {
				name = itemName(el.Item)
			}
			if name == "" || strings.EqualFold(name, "ebay") {
				continue
			}
			names = append(names, name)
		}
		return strings.Join(names, " > "), true
	}
	return "", false
}

// hasType accepts both "@type": "X" and "@type": ["X", ...].
func hasType(raw json.RawMessage, want string) bool {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single == want
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for _, t := range many {
			if t == want {
				return true
			}
		}
	}
	return false
}

// itemName reads the name of a nested "item" object. Plain URL strings give "".
func itemName(raw json.RawMessage) string {
	var item struct {
		Name string `json:"name"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &item) != nil {
		return ""
	}
	return strings.TrimSpace(item.Name)
}
