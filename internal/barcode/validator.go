package barcode

import (
	"regexp"
	"strings"

	"github.com/BearBump/TrackIntake/internal/models"
)

// Rule identifies the first structural rule a code violated.
type Rule int

const (
	RuleLength Rule = iota + 1
	RulePrefix
	RuleTypeMarker
	RuleShipmentID
	RuleFeederID
	RuleDeliveryPartnerID
	RuleDropLocationID
	RuleProductCode
	RuleCharset
)

const (
	MinLength  = 31
	Prefix     = "DVS"
	TypeMarker = "C"
)

var ruleMessages = map[Rule]string{
	RuleLength:            "Barcode muss mindestens 31 Zeichen lang sein",
	RulePrefix:            `Barcode muss mit "DVS" beginnen`,
	RuleTypeMarker:        `Position 4 muss "C" sein`,
	RuleShipmentID:        "Sendungs_ID muss 16 Ziffern enthalten",
	RuleFeederID:          "Einspeiser_ID muss 5 Ziffern enthalten",
	RuleDeliveryPartnerID: "Zustellpartner_ID muss 3 Ziffern enthalten",
	RuleDropLocationID:    "Abladestellen_ID muss 1 Ziffer enthalten",
	RuleProductCode:       "Produktcode muss 2 Ziffern enthalten",
	RuleCharset:           "Barcode enthält unzulässige Zeichen (; \" oder Zeilenumbruch)",
}

// forbidden would break the unquoted DATAMATRIX column of the export document.
const forbidden = ";\"\r\n"

// ValidationError carries the violated rule and the operator-facing message.
type ValidationError struct {
	Rule    Rule
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func newError(r Rule) *ValidationError {
	return &ValidationError{Rule: r, Message: ruleMessages[r]}
}

type field struct {
	rule   Rule
	offset int
	length int
	re     *regexp.Regexp
}

// Порядок важен: проверка останавливается на первом нарушенном правиле.
var digitFields = []field{
	{rule: RuleShipmentID, offset: 4, length: 16, re: regexp.MustCompile(`^\d{16}$`)},
	{rule: RuleFeederID, offset: 20, length: 5, re: regexp.MustCompile(`^\d{5}$`)},
	{rule: RuleDeliveryPartnerID, offset: 25, length: 3, re: regexp.MustCompile(`^\d{3}$`)},
	{rule: RuleDropLocationID, offset: 28, length: 1, re: regexp.MustCompile(`^\d{1}$`)},
	{rule: RuleProductCode, offset: 29, length: 2, re: regexp.MustCompile(`^\d{2}$`)},
}

// Validate trims the code and checks the fixed-width DVS grammar.
// Length and offsets count runes, so multibyte input fails on a field rule.
func Validate(code string) (models.ParsedBarcode, error) {
	code = strings.TrimSpace(code)
	runes := []rune(code)

	if len(runes) < MinLength {
		return models.ParsedBarcode{}, newError(RuleLength)
	}
	if string(runes[0:3]) != Prefix {
		return models.ParsedBarcode{}, newError(RulePrefix)
	}
	if string(runes[3:4]) != TypeMarker {
		return models.ParsedBarcode{}, newError(RuleTypeMarker)
	}

	parts := make(map[Rule]string, len(digitFields))
	for _, f := range digitFields {
		s := string(runes[f.offset : f.offset+f.length])
		if !f.re.MatchString(s) {
			return models.ParsedBarcode{}, newError(f.rule)
		}
		parts[f.rule] = s
	}
	// хвост после 31 символа не проверяется грамматикой, но попадает в CSV без кавычек
	if strings.ContainsAny(string(runes[MinLength:]), forbidden) {
		return models.ParsedBarcode{}, newError(RuleCharset)
	}

	return models.ParsedBarcode{
		Code:              code,
		ShipmentID:        parts[RuleShipmentID],
		FeederID:          parts[RuleFeederID],
		DeliveryPartnerID: parts[RuleDeliveryPartnerID],
		DropLocationID:    parts[RuleDropLocationID],
		ProductCode:       parts[RuleProductCode],
	}, nil
}
