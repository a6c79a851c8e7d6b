package autofill

import (
	"strings"

	"github.com/TRA3H/hunter/internal/model"
)

var captchaMarkers = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"g-recaptcha",
	"h-captcha",
	"challenge-form",
	"cf-turnstile",
	"arkose",
}

// DetectCaptcha reports whether the page source carries a known challenge
// widget marker.
func DetectCaptcha(content string) bool {
	content = strings.ToLower(content)
	for _, m := range captchaMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

// CaptchaField is the placeholder field stored when a challenge blocks the
// form, so the review screen tells the candidate why the run paused.
func CaptchaField() model.FormField {
	return model.FormField{
		FieldName:  "captcha",
		FieldKey:   "captcha",
		UIType:     "captcha",
		Label:      "CAPTCHA detected",
		Confidence: 0,
		Status:     model.FieldNeedsInput,
		Options:    []string{},
	}
}
