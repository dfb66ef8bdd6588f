package plate

import (
	"strings"
	"unicode"
)

// DefaultRegion is the regional prefix printed on local plates.
const DefaultRegion = "RA"

// Validator normalizes raw OCR text into a canonical plate.
// Accepted shape: <region><letter><3 digits><letter>, e.g. RAB123C.
type Validator struct {
	region string
}

// NewValidator returns a validator for the given two-letter region prefix.
func NewValidator(region string) *Validator {
	region = strings.ToUpper(strings.TrimSpace(region))
	if len(region) != 2 || !isUpper(region[0]) || !isUpper(region[1]) {
		region = DefaultRegion
	}
	return &Validator{region: region}
}

// Normalize returns the canonical plate and true, or "" and false when the text
// does not have the exact plate shape. A rejection is OCR noise, not an error.
func (v *Validator) Normalize(raw string) (string, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	if len(s) != 7 || !strings.HasPrefix(s, v.region) {
		return "", false
	}
	if !isUpper(s[2]) || !isDigit(s[3]) || !isDigit(s[4]) || !isDigit(s[5]) || !isUpper(s[6]) {
		return "", false
	}
	return s, true
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
