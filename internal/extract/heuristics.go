package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/validate"
)

const (
	maxContainers    = 40
	maxCardsPerBlock = 100
	minCardText      = 20
	maxCardText      = 1000
	maxListItems     = 40
	minListItemText  = 15
	evidenceLen      = 150
)

var (
	containerKeywords = []string{"ceo", "founder", "director", "executive", "officer"}
	negativeContext   = []string{
		"testimonial", "client", "customer", "review", "award", "recognition",
		"press", "product", "service", "solution", "dealer", "partner",
	}
	nameHeader     = regexp.MustCompile(`(?i)\bname\b`)
	roleHeader     = regexp.MustCompile(`(?i)\b(designation|title|role|position)\b`)
	listSeparator  = regexp.MustCompile(`\s+[-–—|]\s+|:\s*`)
	phoneCharacter = regexp.MustCompile(`[^0-9+]`)
)

// tables reads (name, role) rows from tables with at least two rows. Columns
// come from header tokens when present, else the first two cells. Rows whose
// cells do not read as a name and a role are dropped.
func tables(d *Document) []leadership.Candidate {
	var out []leadership.Candidate
	d.Doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}
		nameCol, roleCol, start := 0, 1, 0
		header := rows.First().Find("th, td")
		if rows.First().Find("th").Length() > 0 {
			start = 1
		}
		header.Each(func(i int, cell *goquery.Selection) {
			text := normalize(cell.Text())
			switch {
			case nameHeader.MatchString(text):
				nameCol, start = i, 1
			case roleHeader.MatchString(text):
				roleCol, start = i, 1
			}
		})
		rows.Each(func(i int, row *goquery.Selection) {
			if i < start {
				return
			}
			cells := row.Find("td, th")
			if cells.Length() <= max(nameCol, roleCol) {
				return
			}
			name := normalize(spacedText(cells.Eq(nameCol)))
			role := normalize(spacedText(cells.Eq(roleCol)))
			if !validate.LooksLikeName(name) || !validate.LooksLikeRole(role) {
				return
			}
			out = append(out, leadership.Candidate{
				Name:      name,
				RoleText:  role,
				SourceURL: d.URL,
				Method:    leadership.MethodTable,
				Evidence:  name + "|" + role,
			})
		})
	})
	return out
}

// cards scans block containers that mention an executive keyword. Each
// inner block of plausible length yields the first name-shaped heading and
// the first role-shaped line after it.
func cards(d *Document) []leadership.Candidate {
	var out []leadership.Candidate
	d.Doc.Find("section, div, main, article").EachWithBreak(func(i int, container *goquery.Selection) bool {
		if i >= maxContainers {
			return false
		}
		if !containsAny(strings.ToLower(spacedText(container)), containerKeywords) {
			return true
		}
		container.Find("div, li, article").EachWithBreak(func(j int, card *goquery.Selection) bool {
			if j >= maxCardsPerBlock {
				return false
			}
			if c, ok := readCard(d.URL, card); ok {
				out = append(out, c)
			}
			return true
		})
		return true
	})
	return out
}

func readCard(source string, card *goquery.Selection) (leadership.Candidate, bool) {
	block := spacedText(card)
	if n := len([]rune(block)); n < minCardText || n > maxCardText {
		return leadership.Candidate{}, false
	}
	if containsAny(strings.ToLower(block), negativeContext) {
		return leadership.Candidate{}, false
	}

	var name string
	card.Find("h2, h3, h4, h5, strong, b").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if cand := normalize(spacedText(h)); validate.LooksLikeName(cand) {
			name = cand
			return false
		}
		return true
	})
	if name == "" {
		return leadership.Candidate{}, false
	}

	var role string
	card.Find("p, span, div, em, i").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		cand := normalize(spacedText(el))
		if cand != name && validate.LooksLikeRole(cand) {
			role = cand
			return false
		}
		return true
	})
	if role == "" {
		return leadership.Candidate{}, false
	}

	c := leadership.Candidate{
		Name:      name,
		RoleText:  role,
		SourceURL: source,
		Method:    leadership.MethodCard,
		Evidence:  truncate(block, evidenceLen),
	}
	card.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		low := strings.ToLower(href)
		switch {
		case c.LinkedIn == "" && isProfileLink(href):
			c.LinkedIn = href
		case c.Email == "" && strings.HasPrefix(low, "mailto:"):
			c.Email = strings.SplitN(href[len("mailto:"):], "?", 2)[0]
		case c.Phone == "" && strings.HasPrefix(low, "tel:"):
			c.Phone = phoneCharacter.ReplaceAllString(href[len("tel:"):], "")
		}
	})
	return c, true
}

// lists reads "Name - Role" and "Name: Role" list items.
func lists(d *Document) []leadership.Candidate {
	var out []leadership.Candidate
	d.Doc.Find("ul, ol").Each(func(_ int, list *goquery.Selection) {
		list.Find("li").EachWithBreak(func(i int, item *goquery.Selection) bool {
			if i >= maxListItems {
				return false
			}
			text := normalize(spacedText(item))
			if len([]rune(text)) < minListItemText {
				return true
			}
			parts := listSeparator.Split(text, 2)
			if len(parts) != 2 {
				return true
			}
			name, role := normalize(parts[0]), normalize(parts[1])
			if !validate.LooksLikeName(name) || !validate.LooksLikeRole(role) {
				return true
			}
			out = append(out, leadership.Candidate{
				Name:      name,
				RoleText:  role,
				SourceURL: d.URL,
				Method:    leadership.MethodList,
				Evidence:  text,
			})
			return true
		})
	})
	return out
}

// textPairs treats adjacent (name-shaped, role-shaped) lines as candidates.
func textPairs(d *Document) []leadership.Candidate {
	lines := Lines(d.Doc)
	var out []leadership.Candidate
	for i := 0; i+1 < len(lines); i++ {
		name, role := lines[i], lines[i+1]
		if !validate.LooksLikeName(name) || !validate.LooksLikeRole(role) {
			continue
		}
		out = append(out, leadership.Candidate{
			Name:      name,
			RoleText:  role,
			SourceURL: d.URL,
			Method:    leadership.MethodTextPair,
			Evidence:  name + " " + role,
		})
		i++
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
