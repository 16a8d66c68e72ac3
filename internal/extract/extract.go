// Package extract recovers hotel fields from raw page content using ordered
// heuristic rules, and repairs records whose structured extraction came back
// incomplete. Rules are tried in declaration order; the first rule yielding a
// non-empty trimmed match wins. There is no scoring and no merging of
// partial matches.
package extract

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/FranksOps/roost/internal/record"
)

// Field names understood by the extractor.
const (
	FieldTitle       = "title"
	FieldAddress     = "address"
	FieldPrice       = "price"
	FieldDescription = "description"
)

// rule is one extraction heuristic. doc is nil when the content did not
// parse as HTML; selector rules then simply miss.
type rule struct {
	name  string
	apply func(content string, doc *goquery.Document) string
}

func regexRule(name, pattern string, group int) rule {
	re := regexp.MustCompile(pattern)
	return rule{
		name: name,
		apply: func(content string, _ *goquery.Document) string {
			m := re.FindStringSubmatch(content)
			if m == nil || group >= len(m) {
				return ""
			}
			return m[group]
		},
	}
}

func selectorRule(name, selector string) rule {
	return rule{
		name: name,
		apply: func(_ string, doc *goquery.Document) string {
			if doc == nil {
				return ""
			}
			return doc.Find(selector).First().Text()
		},
	}
}

func attrRule(name, selector, attr string) rule {
	return rule{
		name: name,
		apply: func(_ string, doc *goquery.Document) string {
			if doc == nil {
				return ""
			}
			v, _ := doc.Find(selector).First().Attr(attr)
			return v
		},
	}
}

// defaultRules holds the per-field rule lists. Patterns follow what actually
// appears on booking pages: labeled fields in page text, then known DOM
// locations, then progressively looser currency matches for prices.
func defaultRules() map[string][]rule {
	return map[string][]rule{
		FieldTitle: {
			selectorRule("h1", "h1"),
			selectorRule("title-tag", "title"),
		},
		FieldAddress: {
			regexRule("labeled-address", `(?i)address:\s*([^,\n]+(?:,\s*[^,\n]+){1,3})`, 1),
			regexRule("labeled-location", `(?i)location:\s*([^,\n]+(?:,\s*[^,\n]+){1,3})`, 1),
			regexRule("property-address", `(?i)(?:hotel|property) address[:\s]+([^,\n]+(?:,\s*[^,\n]+){1,3})`, 1),
			selectorRule("address-subtitle", ".hp_address_subtitle"),
		},
		FieldPrice: {
			regexRule("labeled-price", `(?i)price:\s*(\$[\d,]+(?:\.\d{2})?)`, 1),
			regexRule("currency-code", `(?i)(?:USD|EUR|GBP)\s*([\d,]+(?:\.\d{2})?)`, 1),
			regexRule("per-night", `(?i)(\$[\d,]+(?:\.\d{2})?)\s*per night`, 1),
			regexRule("labeled-rate", `(?i)(?:room rate|rate)[:\s]+(\$[\d,]+(?:\.\d{2})?)`, 1),
			regexRule("currency-symbol", `[$€£₹¥][\d,]+(?:\.\d{2})?`, 0),
		},
		FieldDescription: {
			selectorRule("description-block", "#property_description_content"),
			attrRule("meta-description", `meta[name="description"]`, "content"),
			attrRule("og-description", `meta[property="og:description"]`, "content"),
		},
	}
}

// Extractor applies the heuristic rule lists. It is stateless between calls:
// the same field and content always yield the same result.
type Extractor struct {
	rules  map[string][]rule
	logger *slog.Logger
}

// NewExtractor creates an Extractor with the default rule lists.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{rules: defaultRules(), logger: logger}
}

// Extract recovers a value for the named field from rawContent. Empty content
// short-circuits to the not-found sentinel without evaluating any rule.
// Whitespace-only matches do not count as matches.
func (e *Extractor) Extract(field, rawContent string) record.Field {
	if strings.TrimSpace(rawContent) == "" {
		return record.NotFound()
	}

	rules, ok := e.rules[field]
	if !ok {
		e.logger.Warn("no extraction rules for field", "field", field)
		return record.NotFound()
	}

	// Parse once per call; selector rules miss on unparseable content.
	var doc *goquery.Document
	if d, err := goquery.NewDocumentFromReader(strings.NewReader(rawContent)); err == nil {
		doc = d
	}

	for _, r := range rules {
		v := strings.TrimSpace(r.apply(rawContent, doc))
		if v != "" {
			e.logger.Debug("field extracted", "field", field, "rule", r.name)
			return record.Found(v)
		}
	}

	return record.NotFound()
}

// CollapseWhitespace squeezes all whitespace runs to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// maxDescriptionLen bounds repaired descriptions; beyond it the text is cut
// at a sentence boundary.
const maxDescriptionLen = 600

// TidyDescription collapses whitespace and trims overlong descriptions to
// whole leading sentences.
func TidyDescription(s string) string {
	s = CollapseWhitespace(s)
	if len(s) <= maxDescriptionLen {
		return s
	}

	var b strings.Builder
	for _, sentence := range splitSentences(s) {
		if b.Len() > 0 && b.Len()+len(sentence)+2 > maxDescriptionLen {
			break
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(sentence)
		b.WriteString(".")
	}
	if b.Len() == 0 {
		return s[:maxDescriptionLen]
	}
	return b.String()
}

// splitSentences naively splits text on period characters, dropping empty
// fragments.
func splitSentences(s string) []string {
	parts := strings.Split(s, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
