// CLAUDE:SUMMARY Reply parsing: code-fence stripping, first balanced JSON object extraction, strict schema validation, lenient decode of stored rows.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	reFence = regexp.MustCompile("```[A-Za-z0-9_-]*")
	reHex   = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)
)

// Parse turns a free-form reasoning-service reply into a validated Result.
// Code fences are dropped, then the first balanced top-level {...} is
// decoded. Every failure is a *ParseError.
func Parse(reply string) (*Result, error) {
	obj, ok := ExtractObject(reFence.ReplaceAllString(reply, ""))
	if !ok {
		return nil, &ParseError{Reason: "no JSON object in reply"}
	}
	if err := checkRequired([]byte(obj)); err != nil {
		return nil, &ParseError{Reason: "schema", Err: err}
	}
	var r Result
	if err := json.Unmarshal([]byte(obj), &r); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if err := Validate(&r); err != nil {
		return nil, &ParseError{Reason: "schema", Err: err}
	}
	r.normalize()
	return &r, nil
}

// ExtractObject returns the first substring of s that is a balanced,
// well-formed JSON object. Braces inside string literals are ignored, and a
// balanced span that does not decode (prose such as "{JSON}") is skipped.
func ExtractObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 && json.Valid([]byte(s[start:end+1])) {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing s[start], or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

var requiredKeys = map[string][]string{
	"":                  {"sections", "informationDesign", "designTone", "summary"},
	"informationDesign": {"firstViewSummary", "ctaCount", "ctaPositions", "textVisualRatio", "structureScore", "strengths", "improvements"},
	"designTone":        {"colorPalette", "colorMood", "fontStyle", "whitespaceLevel", "overallImpression", "designScore"},
	"section":           {"type", "label", "description", "position", "elements"},
}

// checkRequired verifies presence of every schema key. Zero values are
// indistinguishable from missing keys after Unmarshal, hence the raw pass.
func checkRequired(obj []byte) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(obj, &top); err != nil {
		return err
	}
	if err := hasKeys(top, "", requiredKeys[""]); err != nil {
		return err
	}
	for _, key := range []string{"informationDesign", "designTone"} {
		var sub map[string]json.RawMessage
		if err := json.Unmarshal(top[key], &sub); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := hasKeys(sub, key+".", requiredKeys[key]); err != nil {
			return err
		}
	}
	var sections []map[string]json.RawMessage
	if err := json.Unmarshal(top["sections"], &sections); err != nil {
		return fmt.Errorf("sections: %w", err)
	}
	for i, sec := range sections {
		if err := hasKeys(sec, fmt.Sprintf("sections[%d].", i), requiredKeys["section"]); err != nil {
			return err
		}
	}
	return nil
}

func hasKeys(m map[string]json.RawMessage, prefix string, keys []string) error {
	if m == nil {
		return fmt.Errorf("%snot an object", prefix)
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok || string(v) == "null" {
			return fmt.Errorf("missing %s%s", prefix, k)
		}
	}
	return nil
}

// Validate checks enumerations and numeric ranges of r.
func Validate(r *Result) error {
	var errs []error
	for i, s := range r.Sections {
		if !contains(SectionTypes, s.Type) {
			errs = append(errs, fmt.Errorf("sections[%d].type %q not allowed", i, s.Type))
		}
		if !contains(Positions, s.Position) {
			errs = append(errs, fmt.Errorf("sections[%d].position %q not allowed", i, s.Position))
		}
	}

	id := r.InformationDesign
	if id.CTACount < 0 {
		errs = append(errs, fmt.Errorf("informationDesign.ctaCount %d is negative", id.CTACount))
	}
	if id.StructureScore < 0 || id.StructureScore > 100 {
		errs = append(errs, fmt.Errorf("informationDesign.structureScore %d out of 0-100", id.StructureScore))
	}

	dt := r.DesignTone
	if !contains(FontStyles, dt.FontStyle) {
		errs = append(errs, fmt.Errorf("designTone.fontStyle %q not allowed", dt.FontStyle))
	}
	if !contains(WhitespaceLevels, dt.WhitespaceLevel) {
		errs = append(errs, fmt.Errorf("designTone.whitespaceLevel %q not allowed", dt.WhitespaceLevel))
	}
	if dt.DesignScore < 0 || dt.DesignScore > 100 {
		errs = append(errs, fmt.Errorf("designTone.designScore %d out of 0-100", dt.DesignScore))
	}
	for i, c := range dt.ColorPalette {
		if !reHex.MatchString(c) {
			errs = append(errs, fmt.Errorf("designTone.colorPalette[%d] %q is not a hex color", i, c))
		}
	}

	if strings.TrimSpace(r.Summary) == "" {
		errs = append(errs, errors.New("summary is empty"))
	}
	return errors.Join(errs...)
}

// Decode reads a stored result. Unlike Parse it does not validate, so rows
// written before a schema change stay readable.
func Decode(stored string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(stored), &r); err != nil {
		return nil, fmt.Errorf("analysis: decode stored result: %w", err)
	}
	r.normalize()
	return &r, nil
}

// Encode serializes r for storage.
func Encode(r *Result) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("analysis: encode result: %w", err)
	}
	return string(b), nil
}

// normalize replaces nil slices so the stored form always has arrays.
func (r *Result) normalize() {
	if r.Sections == nil {
		r.Sections = []Section{}
	}
	for i := range r.Sections {
		if r.Sections[i].Elements == nil {
			r.Sections[i].Elements = []string{}
		}
	}
	id := &r.InformationDesign
	if id.CTAPositions == nil {
		id.CTAPositions = []string{}
	}
	if id.Strengths == nil {
		id.Strengths = []string{}
	}
	if id.Improvements == nil {
		id.Improvements = []string{}
	}
	if r.DesignTone.ColorPalette == nil {
		r.DesignTone.ColorPalette = []string{}
	}
}
