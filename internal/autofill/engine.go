package autofill

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/TRA3H/hunter/internal/browser"
	"github.com/TRA3H/hunter/internal/model"
)

// UI types of a FormField.
const (
	UIText     = "text"
	UITextarea = "textarea"
	UISelect   = "select"
	UICheckbox = "checkbox"
	UIRadio    = "radio"
	UIFile     = "file"
)

const controlSelector = "input, select, textarea"

var skippedInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"image":  true,
	"reset":  true,
}

var (
	errNoControl = errors.New("control not found")
	errNoChoice  = errors.New("no choice matches value")
)

// Engine analyzes and fills forms on a live page.
type Engine struct {
	log *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	return &Engine{log: log.Named("autofill")}
}

// ─── Analyze ─────────────────────────────────────────────────────────────────

// AnalyzeFields describes every fillable control on page and proposes a
// value for it from profile. Radios and checkboxes sharing a name become one
// field whose Options are the choices; a lone checkbox is a yes/no toggle.
// Controls without a name or id are numbered. Controls that fail to inspect
// are skipped.
func (e *Engine) AnalyzeFields(ctx context.Context, page browser.Page, profile *model.CandidateProfile) ([]model.FormField, error) {
	controls, err := page.Query(controlSelector)
	if err != nil {
		return nil, fmt.Errorf("query form controls: %w", err)
	}

	fields := make([]model.FormField, 0, len(controls))
	groups := make(map[string]int)
	unnamed := 0
	for _, el := range controls {
		if err := ctx.Err(); err != nil {
			return fields, err
		}
		f, option, ok, err := e.describe(page, el, profile)
		if err != nil {
			e.log.Warn("error analyzing form element", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if f.Selector == "" {
			unnamed++
			f.FieldName = fmt.Sprintf("%s_%d", f.FieldName, unnamed)
		} else if isChoice(f.UIType) {
			key := f.UIType + "|" + f.FieldName
			if i, seen := groups[key]; seen {
				g := &fields[i]
				g.Options = append(g.Options, option)
				if g.UIType == UICheckbox {
					g.Label = firstNonEmpty(groupLabel(el), g.FieldName)
				}
				continue
			}
			groups[key] = len(fields)
		}
		fields = append(fields, f)
	}

	for i := range fields {
		if fields[i].UIType == UICheckbox && len(fields[i].Options) == 1 {
			fields[i].Options = []string{}
		}
	}
	return fields, nil
}

// describe builds the field for one control. For radios and checkboxes it
// also returns the text of the choice the control stands for.
func (e *Engine) describe(page browser.Page, el browser.Element, profile *model.CandidateProfile) (model.FormField, string, bool, error) {
	tag, err := el.TagName()
	if err != nil {
		return model.FormField{}, "", false, err
	}
	inputType := strings.ToLower(attr(el, "type"))
	if skippedInputTypes[inputType] {
		return model.FormField{}, "", false, nil
	}
	ui := uiType(tag, inputType)
	name, id := attr(el, "name"), attr(el, "id")
	placeholder, aria := attr(el, "placeholder"), attr(el, "aria-label")

	label := controlLabel(page, el)
	option := ""
	if isChoice(ui) {
		option = firstNonEmpty(label, attr(el, "value"))
	}
	if ui == UIRadio {
		// A radio's own label names the choice, not the question.
		label = groupLabel(el)
	}

	key, patternConf := Classify(Signals{
		Label:       label,
		Name:        name,
		Placeholder: placeholder,
		AriaLabel:   aria,
		InputType:   inputType,
	})
	value, valueConf := ResolveValue(profile, key)
	confidence, status := Score(patternConf, value, valueConf)

	f := model.FormField{
		FieldName:  firstNonEmpty(name, id, "unnamed_"+tag),
		FieldKey:   key,
		UIType:     ui,
		Label:      firstNonEmpty(label, placeholder, name, aria),
		Value:      value,
		Confidence: confidence,
		Status:     status,
		Options:    []string{},
	}
	switch {
	case name != "":
		f.Selector = "[name=" + quote(name) + "]"
	case id != "":
		f.Selector = "[id=" + quote(id) + "]"
	}

	switch ui {
	case UISelect:
		opts, err := el.Query("option")
		if err != nil {
			return model.FormField{}, "", false, err
		}
		for _, o := range opts {
			if text, _ := o.Text(); text != "" {
				f.Options = append(f.Options, text)
			}
		}
	case UIRadio, UICheckbox:
		f.Options = append(f.Options, option)
	}
	return f, option, true, nil
}

// controlLabel is the text of the label pointing at el, or wrapping it.
func controlLabel(page browser.Page, el browser.Element) string {
	if id := attr(el, "id"); id != "" {
		if text := browser.TextOf(page, "label[for="+quote(id)+"]"); text != "" {
			return text
		}
	}
	if parent, _ := el.Ancestor("label"); parent != nil {
		text, _ := parent.Text()
		return text
	}
	return ""
}

// groupLabel is the legend of the fieldset around el, if any.
func groupLabel(el browser.Element) string {
	fs, err := el.Ancestor("fieldset")
	if err != nil || fs == nil {
		return ""
	}
	legends, err := fs.Query("legend")
	if err != nil || len(legends) == 0 {
		return ""
	}
	text, _ := legends[0].Text()
	return text
}

// HasFillableControls reports whether page shows any control that
// AnalyzeFields would describe.
func HasFillableControls(page browser.Page) bool {
	controls, err := page.Query(controlSelector)
	if err != nil {
		return false
	}
	for _, el := range controls {
		if skippedInputTypes[strings.ToLower(attr(el, "type"))] {
			continue
		}
		if visible, _ := el.IsVisible(); visible {
			return true
		}
	}
	return false
}

func isChoice(ui string) bool { return ui == UIRadio || ui == UICheckbox }

func uiType(tag, inputType string) string {
	switch tag {
	case "select":
		return UISelect
	case "textarea":
		return UITextarea
	}
	switch inputType {
	case "checkbox":
		return UICheckbox
	case "radio":
		return UIRadio
	case "file":
		return UIFile
	}
	return UIText
}

// ─── Fill ────────────────────────────────────────────────────────────────────

// FillFields writes each field's value into page and returns the updated
// fields. A field that cannot be filled is downgraded to needs_input with
// its value cleared; the pass always continues.
func (e *Engine) FillFields(ctx context.Context, page browser.Page, fields []model.FormField) ([]model.FormField, error) {
	out := make([]model.FormField, len(fields))
	copy(out, fields)

	for i := range out {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		f := &out[i]
		if f.Value == "" {
			continue
		}
		if f.Selector == "" {
			f.Selector = SelectorFor(f.FieldName)
		}
		if f.Selector == "" {
			continue
		}
		if err := fill(page, f); err != nil {
			e.log.Warn("failed to fill field",
				zap.String("field", f.FieldName),
				zap.String("selector", f.Selector),
				zap.Error(err),
			)
			f.Status = model.FieldNeedsInput
			f.Value = ""
			continue
		}
		f.Status = model.FieldFilled
	}
	return out, nil
}

func fill(page browser.Page, f *model.FormField) error {
	if isChoice(f.UIType) {
		return fillChoice(page, f)
	}
	el, err := browser.First(page, f.Selector)
	if err != nil {
		return err
	}
	if el == nil {
		return errNoControl
	}

	switch f.UIType {
	case UISelect:
		return el.SelectOption(f.Value)
	case UIFile:
		if _, err := os.Stat(f.Value); err != nil {
			return fmt.Errorf("upload %s: %w", f.Value, err)
		}
		return el.SetInputFile(f.Value)
	case UIText, UITextarea:
		if err := el.Click(); err != nil {
			return err
		}
		if err := el.Fill(""); err != nil {
			return err
		}
	}
	return el.Fill(f.Value)
}

// fillChoice checks the radios or checkboxes under f.Selector. A lone
// checkbox is toggled by the truthiness of the value. Otherwise the control
// whose value or label equals the value is checked; checkbox groups take a
// comma-separated list. A value that matches no control is an error.
func fillChoice(page browser.Page, f *model.FormField) error {
	found, err := page.Query(f.Selector)
	if err != nil {
		return err
	}
	controls := found[:0]
	for _, el := range found {
		if isChoice(strings.ToLower(attr(el, "type"))) {
			controls = append(controls, el)
		}
	}
	if len(controls) == 0 {
		return errNoControl
	}
	if f.UIType == UICheckbox && len(controls) == 1 {
		return setChecked(controls[0], truthy(f.Value))
	}

	wanted := []string{f.Value}
	if f.UIType == UICheckbox {
		wanted = strings.Split(f.Value, ",")
	}
	for _, want := range wanted {
		want = strings.TrimSpace(want)
		el := matchChoice(page, controls, want)
		if el == nil {
			return fmt.Errorf("%w: %q", errNoChoice, want)
		}
		if err := setChecked(el, true); err != nil {
			return err
		}
	}
	return nil
}

func matchChoice(page browser.Page, controls []browser.Element, want string) browser.Element {
	if want == "" {
		return nil
	}
	for _, el := range controls {
		if strings.EqualFold(strings.TrimSpace(attr(el, "value")), want) ||
			strings.EqualFold(strings.TrimSpace(controlLabel(page, el)), want) {
			return el
		}
	}
	return nil
}

func setChecked(el browser.Element, want bool) error {
	checked, err := el.IsChecked()
	if err != nil {
		return err
	}
	if checked != want {
		return el.Click()
	}
	return nil
}

// SelectorFor rebuilds the control selector of a stored field, whose
// Selector is not persisted.
func SelectorFor(fieldName string) string {
	if fieldName == "" || strings.HasPrefix(fieldName, "unnamed_") {
		return ""
	}
	return "[name=" + quote(fieldName) + "], [id=" + quote(fieldName) + "]"
}

// ─── Review ──────────────────────────────────────────────────────────────────

// NeedsHumanReview reports whether any field still needs the candidate.
func NeedsHumanReview(fields []model.FormField) bool {
	for _, f := range fields {
		if f.Status == model.FieldNeedsInput {
			return true
		}
	}
	return false
}

// CleanFields returns the persistable snapshot: one field per name, in
// first-seen order with the last value winning, and no selectors. Analyzed
// fields already carry unique names; duplicates come from review merges.
func CleanFields(fields []model.FormField) []model.FormField {
	out := make([]model.FormField, 0, len(fields))
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		f.Selector = ""
		if f.Options == nil {
			f.Options = []string{}
		}
		if i, ok := index[f.FieldName]; ok {
			out[i] = f
			continue
		}
		index[f.FieldName] = len(out)
		out = append(out, f)
	}
	return out
}

// ResumeUploaded reports whether a file field was filled.
func ResumeUploaded(fields []model.FormField) bool {
	for _, f := range fields {
		if f.UIType == UIFile && f.Status == model.FieldFilled {
			return true
		}
	}
	return false
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func attr(el browser.Element, name string) string {
	v, _, err := el.Attr(name)
	if err != nil {
		return ""
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

// quote renders s as a CSS attribute value.
func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
