package matcher

import (
	"math"
	"regexp"
	"strings"

	"github.com/TRA3H/hunter/internal/model"
)

// Score weights; they sum to 1.
const (
	keywordWeight  = 0.40
	titleWeight    = 0.35
	locationWeight = 0.25

	neutralLocationScore = 50.0
	partialLocationScore = 60.0
)

var tokenRe = regexp.MustCompile(`[a-z0-9+#]+`)

// Preferences is the part of a candidate profile that drives scoring.
type Preferences struct {
	Keywords         []string
	DesiredTitle     string
	DesiredLocations string // comma-separated
	RemotePreference string
}

// PreferencesFor combines board keywords with the profile's desired title,
// locations and remote preference. A nil profile scores on keywords only.
func PreferencesFor(keywords []string, p *model.CandidateProfile) Preferences {
	prefs := Preferences{Keywords: keywords}
	if p != nil {
		prefs.DesiredTitle = p.DesiredTitle
		prefs.DesiredLocations = p.DesiredLocations
		prefs.RemotePreference = p.RemotePreference
	}
	return prefs
}

// MatchScore rates a job 0–100 against prefs, rounded to one decimal.
func MatchScore(title, description, location string, prefs Preferences) float64 {
	kw := KeywordScore(title+" "+description, prefs.Keywords)
	ts := TitleScore(title, prefs.DesiredTitle)
	ls := LocationScore(location, prefs.DesiredLocations, prefs.RemotePreference)

	overall := kw*keywordWeight + ts*titleWeight + ls*locationWeight
	overall = math.Max(0, math.Min(overall, 100))
	return math.Round(overall*10) / 10
}

// KeywordScore is the percentage of keywords found in text.
func KeywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matches++
		}
	}
	return float64(matches) / float64(len(keywords)) * 100
}

// TitleScore is the percentage of desired-title tokens present in title.
func TitleScore(title, desired string) float64 {
	if desired == "" {
		return 0
	}
	want := tokenize(desired)
	if len(want) == 0 {
		return 0
	}
	have := tokenize(title)
	overlap := 0
	for tok := range want {
		if _, ok := have[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(want)) * 100
}

// LocationScore is 100 for a remote or substring match, 60 for a shared
// token, 50 when there is no preference at all, otherwise 0.
func LocationScore(location, desired, remotePreference string) float64 {
	if desired == "" && remotePreference == "" {
		return neutralLocationScore
	}
	lower := strings.ToLower(location)

	if (remotePreference == "remote" || remotePreference == "any") && strings.Contains(lower, "remote") {
		return 100
	}
	if desired == "" {
		return 0
	}

	var locations []string
	for _, loc := range strings.Split(desired, ",") {
		if loc = strings.ToLower(strings.TrimSpace(loc)); loc != "" {
			locations = append(locations, loc)
		}
	}
	for _, loc := range locations {
		if strings.Contains(lower, loc) {
			return 100
		}
	}

	jobTokens := tokenize(location)
	for _, loc := range locations {
		for tok := range tokenize(loc) {
			if _, ok := jobTokens[tok]; ok {
				return partialLocationScore
			}
		}
	}
	return 0
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		out[tok] = struct{}{}
	}
	return out
}
