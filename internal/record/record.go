// Package record normalizes scanned candidates into job records.
package record

import (
	"regexp"
	"strings"

	"jobalert-engine/internal/scan"
)

// JobRecord is the canonical output unit. Title/Company/Location are never
// empty: a field is either recovered or holds its Unknown sentinel, so
// formatting downstream needs no nil-checks.
type JobRecord struct {
	ID       string // empty when the URL is not a specific posting
	Title    string
	Company  string
	Location string
	URL      string
}

const (
	UnknownTitle    = "Unknown Position"
	UnknownCompany  = "Unknown Company"
	UnknownLocation = "Unknown Location"

	delimiter = "·"
)

var reJobID = regexp.MustCompile(`/jobs/view/(\d+)`)

// titleHeuristics are tried in order; the first non-empty result wins.
var titleHeuristics = []func(scan.Candidate) string{
	titleFromBold,
	titleFromDelimiterSplit,
	titleFromDisplayText,
}

// Build never fails; unrecoverable metadata degrades to sentinels.
func Build(c scan.Candidate) JobRecord {
	r := JobRecord{
		ID:       jobID(c.URL),
		Title:    UnknownTitle,
		Company:  UnknownCompany,
		Location: UnknownLocation,
		URL:      c.URL,
	}

	for _, h := range titleHeuristics {
		if t := h(c); t != "" {
			r.Title = t
			break
		}
	}

	if company, location, ok := metaFromContext(c.Context); ok {
		if company != "" {
			r.Company = company
		}
		if location != "" {
			r.Location = location
		}
	}

	return r
}

// jobID extracts the numeric posting identifier; listing and search URLs
// yield no id and such records stay outside dedup tracking.
func jobID(url string) string {
	if m := reJobID.FindStringSubmatch(url); len(m) == 2 {
		return m[1]
	}
	return ""
}

func titleFromBold(c scan.Candidate) string {
	return strings.TrimSpace(c.Bold)
}

// titleFromDelimiterSplit takes the first non-empty segment of the display
// text split on the middle dot, for templates that inline "Title · Company".
func titleFromDelimiterSplit(c scan.Candidate) string {
	if !strings.Contains(c.Text, delimiter) {
		return ""
	}
	for _, seg := range strings.Split(c.Text, delimiter) {
		if seg = strings.TrimSpace(seg); seg != "" {
			return seg
		}
	}
	return ""
}

func titleFromDisplayText(c scan.Candidate) string {
	return strings.TrimSpace(c.Text)
}

// metaFromContext finds the first delimiter-bearing context entry and splits
// it into company then location. A lone segment is treated as the company.
func metaFromContext(context []string) (company, location string, ok bool) {
	for _, entry := range context {
		if !strings.Contains(entry, delimiter) {
			continue
		}
		parts := strings.SplitN(entry, delimiter, 2)
		company = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			location = strings.TrimSpace(parts[1])
		}
		return company, location, true
	}
	return "", "", false
}
