// Package scan finds hyperlink-like job references in extracted email content.
package scan

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobalert-engine/internal/extract"
)

// Candidate is one provisional job reference. The record builder recovers
// metadata from Bold and Context; the scanner never interprets them.
type Candidate struct {
	Text string // display text, never empty
	URL  string

	// Bold is the emphasized sub-span inside the anchor, if any.
	Bold string

	// Context is a bounded window of nearby text (following siblings of the
	// anchor, or the lines after a plain-text URL).
	Context []string
}

const (
	fallbackAnchorText = "Job"
	fallbackTitleText  = "Unknown Position"

	maxContextNodes = 8
)

// Aggregate/navigation anchors that never point at a single posting.
var noisePhrases = []string{
	"your job alert",
	"see all jobs",
	"view all",
	"recommended jobs",
}

var reTextURL = regexp.MustCompile(`https?://[A-Za-z0-9.-]*linkedin\.com/(?:comm/)?jobs/[^\s<>"')\]]*`)

// Scan yields candidates from the richest content available: structured HTML
// when present, plain text otherwise. One pass per call, no shared state.
func Scan(c extract.Content) []Candidate {
	if strings.TrimSpace(c.HTML) != "" {
		return scanHTML(c.HTML)
	}
	if strings.TrimSpace(c.Text) != "" {
		return scanText(c.Text)
	}
	return nil
}

func scanHTML(htmlBody string) []Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		return nil
	}

	var out []Candidate

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		text := cleanText(a.Text())
		if text == "" {
			if label, ok := a.Attr("aria-label"); ok {
				text = cleanText(label)
			}
		}
		if text == "" {
			text = fallbackAnchorText
		}

		if isNoise(text, href) {
			return
		}

		cand := Candidate{
			Text: text,
			URL:  href,
			Bold: cleanText(a.Find("strong,b").First().Text()),
		}

		// Following siblings usually hold the "Company · Location" line.
		a.NextAll().EachWithBreak(func(i int, sib *goquery.Selection) bool {
			if i >= maxContextNodes {
				return false
			}
			if t := siblingText(sib); t != "" {
				cand.Context = append(cand.Context, t)
			}
			return true
		})

		out = append(out, cand)
	})

	return out
}

func scanText(body string) []Candidate {
	lines := strings.Split(body, "\n")

	var out []Candidate

	for i, line := range lines {
		urls := reTextURL.FindAllString(line, -1)
		for _, u := range urls {
			u = strings.TrimRight(u, `.,);:]"'`)

			text := cleanText(reTextURL.ReplaceAllString(line, " "))
			if text == "" {
				text = previousNonEmptyLine(lines, i)
			}
			if text == "" {
				text = fallbackTitleText
			}

			if isNoise(text, u) {
				continue
			}

			out = append(out, Candidate{
				Text:    text,
				URL:     u,
				Context: followingLines(lines, i, 3),
			})
		}
	}

	return out
}

func isNoise(text, href string) bool {
	lt := strings.ToLower(text)
	for _, phrase := range noisePhrases {
		if strings.Contains(lt, phrase) {
			return true
		}
	}
	lh := strings.ToLower(href)
	return strings.Contains(lh, "/jobs/search") || strings.Contains(lh, "/comm/jobs/search")
}

// siblingText renders one sibling node. When the node's own text carries no
// middle-dot but it has several inline children, join them with the delimiter
// so "Company"/"Location" split across spans still reads as one pair.
func siblingText(sel *goquery.Selection) string {
	t := cleanText(sel.Text())
	if strings.Contains(t, "·") {
		return t
	}

	var parts []string
	sel.Children().Each(func(_ int, ch *goquery.Selection) {
		if ct := cleanText(ch.Text()); ct != "" {
			parts = append(parts, ct)
		}
	})
	if len(parts) >= 2 {
		return strings.Join(parts, " · ")
	}
	return t
}

func previousNonEmptyLine(lines []string, i int) string {
	for j := i - 1; j >= 0; j-- {
		t := cleanText(reTextURL.ReplaceAllString(lines[j], " "))
		if t != "" {
			return t
		}
	}
	return ""
}

func followingLines(lines []string, i, max int) []string {
	var out []string
	for j := i + 1; j < len(lines) && len(out) < max; j++ {
		if t := cleanText(lines[j]); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
