package stage

import (
	"context"
	"regexp"
	"strings"

	"agentflow/pkg/config"
	"agentflow/pkg/templates"
)

var (
	tailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\*\*Fixed[\s\S]*`),
		regexp.MustCompile(`(?i)\*\*Change Summary[\s\S]*`),
	}
	fencePattern = regexp.MustCompile("```[\\s\\S]*?```")
	refusals     = []string{"i can't help", "i cannot help", "i'm sorry", "i am sorry", "i'm unable", "i am not able"}
)

// refusalMaxLen is the length above which an answer is never treated as a refusal.
const refusalMaxLen = 500

// Translator converts requests into English and reports back into the
// configured reply language.
type Translator struct {
	inv      *Invoker
	language string
}

// NewTranslator returns a translator for language. An empty language
// disables translation.
func NewTranslator(inv *Invoker, language string) *Translator {
	return &Translator{inv: inv, language: strings.TrimSpace(language)}
}

// Enabled reports whether a reply language is configured.
func (t *Translator) Enabled() bool { return t.language != "" }

// ToEnglish translates and sanitizes a request. The original text is kept
// when the translator fails or refuses.
func (t *Translator) ToEnglish(ctx context.Context, text string) (string, error) {
	if !t.Enabled() {
		return text, nil
	}
	out, err := t.translate(ctx, text, "English")
	if err != nil {
		return "", err
	}
	if cleaned := SanitizeTranslated(out); cleaned != "" {
		return cleaned, nil
	}
	return text, nil
}

// FromEnglish translates a report into the reply language.
func (t *Translator) FromEnglish(ctx context.Context, text string) (string, error) {
	if !t.Enabled() {
		return text, nil
	}
	return t.translate(ctx, text, t.language)
}

func (t *Translator) translate(ctx context.Context, text, language string) (string, error) {
	system, err := renderTranslator(language)
	if err != nil {
		return "", err
	}
	out, err := t.inv.Invoke(ctx, config.StageTranslator, Messages(system, "Translate to "+language+":\n"+text))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t.inv.logger.Warn("translation to %s failed, keeping original: %v", language, err)
		return text, nil
	}
	if out == "" || IsRefusal(out) {
		return text, nil
	}
	return out, nil
}

func renderTranslator(language string) (string, error) {
	r, err := templates.Default()
	if err != nil {
		return "", err
	}
	return r.Render(templates.Translator, templates.TranslatorData{Language: language})
}

// IsRefusal reports whether a short answer reads like a refusal.
func IsRefusal(out string) bool {
	if out == "" || len(out) > refusalMaxLen {
		return false
	}
	lower := strings.ToLower(out)
	for _, r := range refusals {
		if strings.Contains(lower, r) {
			return true
		}
	}
	return false
}

// SanitizeTranslated drops change-summary tails and code fences a
// translator tends to add, and keeps only the first paragraph.
func SanitizeTranslated(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}
	for _, re := range tailPatterns {
		cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
	}
	cleaned = strings.TrimSpace(fencePattern.ReplaceAllString(cleaned, ""))
	if first, _, ok := strings.Cut(cleaned, "\n\n"); ok {
		cleaned = strings.TrimSpace(first)
	}
	return cleaned
}
