// Package autofill maps application form controls onto the candidate
// profile and fills them in a live page.
package autofill

import (
	"math"
	"regexp"
	"strings"

	"github.com/TRA3H/hunter/internal/model"
)

// ConfidenceThreshold is the lowest confidence at which a field is filled
// without asking the candidate.
const ConfidenceThreshold = 0.7

// Field keys produced by Classify.
const (
	KeyFirstName         = "first_name"
	KeyLastName          = "last_name"
	KeyFullName          = "full_name"
	KeyEmail             = "email"
	KeyPhone             = "phone"
	KeyLinkedInURL       = "linkedin_url"
	KeyWebsiteURL        = "website_url"
	KeyUSCitizen         = "us_citizen"
	KeySponsorshipNeeded = "sponsorship_needed"
	KeyVeteranStatus     = "veteran_status"
	KeyDisabilityStatus  = "disability_status"
	KeyGender            = "gender"
	KeyEthnicity         = "ethnicity"
	KeyResume            = "resume"
	KeyCoverLetter       = "cover_letter"
	KeyUnknown           = "unknown"
)

const (
	patternConfidence     = 0.85
	resumeConfidence      = 0.9
	coverLetterConfidence = 0.8
	unknownConfidence     = 0.3
)

// fieldPatterns is matched in order; the first hit wins.
var fieldPatterns = []struct {
	re  *regexp.Regexp
	key string
}{
	{regexp.MustCompile(`first.?name|given.?name|fname`), KeyFirstName},
	{regexp.MustCompile(`last.?name|surname|family.?name|lname`), KeyLastName},
	{regexp.MustCompile(`full.?name|your.?name|^name$`), KeyFullName},
	{regexp.MustCompile(`e.?mail|email.?address`), KeyEmail},
	{regexp.MustCompile(`phone|mobile|telephone|cell`), KeyPhone},
	{regexp.MustCompile(`linkedin`), KeyLinkedInURL},
	{regexp.MustCompile(`website|portfolio|personal.?site|url`), KeyWebsiteURL},
	{regexp.MustCompile(`citizen|authorization|authorized|legally`), KeyUSCitizen},
	{regexp.MustCompile(`sponsor|visa`), KeySponsorshipNeeded},
	{regexp.MustCompile(`veteran|military`), KeyVeteranStatus},
	{regexp.MustCompile(`disab`), KeyDisabilityStatus},
	{regexp.MustCompile(`gender|sex`), KeyGender},
	{regexp.MustCompile(`ethnic|race|demographic`), KeyEthnicity},
}

// Signals is the identifying text around one form control.
type Signals struct {
	Label       string
	Name        string
	Placeholder string
	AriaLabel   string
	InputType   string
}

func (s Signals) text() string {
	return strings.TrimSpace(strings.ToLower(s.Label + " " + s.Name + " " + s.Placeholder + " " + s.AriaLabel))
}

// Classify guesses which profile attribute a control asks for.
func Classify(s Signals) (key string, confidence float64) {
	signal := s.text()

	if signal != "" {
		for _, p := range fieldPatterns {
			if p.re.MatchString(signal) {
				return p.key, patternConfidence
			}
		}
	}
	if strings.EqualFold(s.InputType, "file") || strings.Contains(signal, "resume") || strings.Contains(signal, "cv ") {
		return KeyResume, resumeConfidence
	}
	if strings.Contains(signal, "cover") && strings.Contains(signal, "letter") {
		return KeyCoverLetter, coverLetterConfidence
	}
	if signal == "" {
		return KeyUnknown, 0
	}
	return KeyUnknown, unknownConfidence
}

// ResolveValue looks the key up on the profile. Unset or unknown keys give
// an empty value and zero confidence.
func ResolveValue(p *model.CandidateProfile, key string) (string, float64) {
	if p == nil {
		return "", 0
	}
	switch key {
	case KeyFullName:
		if name := strings.TrimSpace(p.FirstName + " " + p.LastName); name != "" {
			return name, 0.95
		}
		return "", 0
	case KeyUSCitizen:
		return yesNo(p.USCitizen)
	case KeySponsorshipNeeded:
		return yesNo(p.SponsorshipNeeded)
	}

	var v string
	switch key {
	case KeyFirstName:
		v = p.FirstName
	case KeyLastName:
		v = p.LastName
	case KeyEmail:
		v = p.Email
	case KeyPhone:
		v = p.Phone
	case KeyLinkedInURL:
		v = p.LinkedInURL
	case KeyWebsiteURL:
		v = p.WebsiteURL
	case KeyVeteranStatus:
		v = p.VeteranStatus
	case KeyDisabilityStatus:
		v = p.DisabilityStatus
	case KeyGender:
		v = p.Gender
	case KeyEthnicity:
		v = p.Ethnicity
	case KeyResume:
		v = p.ResumePath
	case KeyCoverLetter:
		v = p.CoverLetterTemplate
	}
	if v == "" {
		return "", 0
	}
	return v, 0.9
}

func yesNo(b *bool) (string, float64) {
	if b == nil {
		return "", 0
	}
	if *b {
		return "Yes", 0.9
	}
	return "No", 0.9
}

// Score combines the classifier and profile confidences into the final
// confidence and fill status of a field.
func Score(patternConf float64, value string, valueConf float64) (float64, string) {
	conf := 0.0
	if value != "" {
		conf = math.Min(patternConf, valueConf)
	}
	conf = math.Round(conf*100) / 100
	if value != "" && conf >= ConfidenceThreshold {
		return conf, model.FieldFilled
	}
	return conf, model.FieldNeedsInput
}
