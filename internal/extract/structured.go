package extract

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

const maxJSONLDDepth = 8

// structured reads JSON-LD Person objects, including ones nested in @graph,
// lists, or properties such as founder and employee.
func structured(d *Document) []leadership.Candidate {
	var out []leadership.Candidate
	d.Doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}
		walkJSONLD(data, 0, func(obj map[string]any) {
			name := normalize(stringField(obj["name"]))
			role := normalize(stringField(obj["jobTitle"]))
			if name == "" || role == "" {
				return
			}
			c := leadership.Candidate{
				Name:      name,
				RoleText:  role,
				SourceURL: d.URL,
				Method:    leadership.MethodStructured,
				Evidence:  "jsonld",
				Email:     strings.TrimPrefix(stringField(obj["email"]), "mailto:"),
				Phone:     strings.TrimPrefix(stringField(obj["telephone"]), "tel:"),
			}
			for _, link := range stringList(obj["sameAs"]) {
				if isProfileLink(link) {
					c.LinkedIn = link
					break
				}
			}
			out = append(out, c)
		})
	})
	return out
}

func walkJSONLD(v any, depth int, visit func(map[string]any)) {
	if depth > maxJSONLDDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			walkJSONLD(item, depth+1, visit)
		}
	case map[string]any:
		if isPerson(t["@type"]) {
			visit(t)
		}
		for _, key := range slices.Sorted(maps.Keys(t)) {
			if key == "@type" || key == "@context" {
				continue
			}
			child := t[key]
			switch child.(type) {
			case []any, map[string]any:
				walkJSONLD(child, depth+1, visit)
			}
		}
	}
}

func isPerson(v any) bool {
	for _, t := range stringList(v) {
		if strings.Contains(strings.ToLower(t), "person") {
			return true
		}
	}
	return false
}

func stringField(v any) string {
	list := stringList(v)
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func isProfileLink(href string) bool {
	return strings.Contains(strings.ToLower(href), "linkedin.com/in/")
}
