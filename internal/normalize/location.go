package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// Country is assigned to every non-empty location.
const Country = "USA"

var (
	zipPattern = regexp.MustCompile(`\d{5}(?:-\d{4})?`)

	remoteKeywords = []string{"remote", "virtual", "work from home", "wfh", "telecommute"}
)

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"district of columbia": "DC", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND", "ohio": "OH",
	"oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA", "rhode island": "RI",
	"south carolina": "SC", "south dakota": "SD", "tennessee": "TN", "texas": "TX",
	"utah": "UT", "vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
}

var (
	stateCodes = func() map[string]struct{} {
		out := make(map[string]struct{}, len(stateNames))
		for _, code := range stateNames {
			out[code] = struct{}{}
		}
		return out
	}()

	// longest first so "west virginia" beats "virginia"
	stateNamesByLength = func() []string {
		out := make([]string, 0, len(stateNames))
		for name := range stateNames {
			out = append(out, name)
		}
		sort.Slice(out, func(i, j int) bool {
			if len(out[i]) != len(out[j]) {
				return len(out[i]) > len(out[j])
			}
			return out[i] < out[j]
		})
		return out
	}()
)

// ParseLocation extracts the structured location from free text. A
// two-letter state code standing alone wins over a spelled-out state name.
// Empty text yields an empty Location.
func ParseLocation(text string) jobs.Location {
	text = strings.TrimSpace(text)
	if text == "" {
		return jobs.Location{}
	}
	lower := strings.ToLower(text)
	return jobs.Location{
		City:     parseCity(text),
		State:    parseState(text, lower),
		Country:  Country,
		IsRemote: IsRemote(lower),
	}
}

// IsRemote reports whether text carries a remote-work marker.
func IsRemote(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range remoteKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseCity(text string) string {
	segment, _, _ := strings.Cut(text, ",")
	segment = strings.TrimSpace(zipPattern.ReplaceAllString(segment, ""))
	if IsRemote(segment) {
		return ""
	}
	return segment
}

func parseState(text, lower string) string {
	upper := strings.ToUpper(text)
	for i := 0; i+2 <= len(upper); i++ {
		if i > 0 && !isSpace(upper[i-1]) {
			continue
		}
		if !isUpper(upper[i]) || !isUpper(upper[i+1]) {
			continue
		}
		if i+2 < len(upper) && !isSpace(upper[i+2]) && !isDigit(upper[i+2]) {
			continue
		}
		if _, ok := stateCodes[upper[i:i+2]]; ok {
			return upper[i : i+2]
		}
	}
	for _, name := range stateNamesByLength {
		if strings.Contains(lower, name) {
			return stateNames[name]
		}
	}
	return ""
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' }
func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
