package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/kwhitaker/zerogex/internal/models"
)

// FormatOptionSymbol builds an OCC/OSI option symbol:
// underlying + YYMMDD + C/P + strike*1000 zero-padded to 8 digits.
// Example: SPY + 2026-03-20 + put + 470 -> SPY260320P00470000.
func FormatOptionSymbol(underlying string, expiration time.Time, legType models.LegType, strike float64) (string, error) {
	if underlying == "" {
		return "", fmt.Errorf("underlying symbol is empty")
	}
	if strike <= 0 {
		return "", fmt.Errorf("invalid strike %.2f: must be positive", strike)
	}

	var typeCode string
	switch legType {
	case models.LegTypeCall:
		typeCode = "C"
	case models.LegTypePut:
		typeCode = "P"
	default:
		return "", fmt.Errorf("invalid leg type %q", legType)
	}

	strikeInt := int64(strike*1000 + 0.5)
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(underlying), expiration.Format("060102"), typeCode, strikeInt), nil
}

// ExtractUnderlyingFromOSI recovers the underlying ticker from an OSI
// option symbol by locating the six-digit expiration date that precedes
// the C/P type code and the eight-digit strike.
func ExtractUnderlyingFromOSI(optionSymbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(optionSymbol))
	// Shortest legal OSI symbol: 1-char root + 6 date + 1 type + 8 strike.
	if len(s) < 16 {
		return "", fmt.Errorf("symbol too short for OSI format")
	}

	for i := 1; i+15 <= len(s); i++ {
		date := s[i : i+6]
		typeCode := s[i+6]
		strike := s[i+7:]
		if isSixDigits(date) && (typeCode == 'C' || typeCode == 'P') && isEightDigits(strike) {
			return s[:i], nil
		}
	}
	return "", fmt.Errorf("no OSI date/type/strike segment found")
}

// OptionTypeFromSymbol extracts the leg type from an OSI option symbol.
func OptionTypeFromSymbol(optionSymbol string) (models.LegType, error) {
	s := strings.ToUpper(strings.TrimSpace(optionSymbol))
	if len(s) < 16 {
		return "", fmt.Errorf("symbol too short for OSI format")
	}
	typeCode := s[len(s)-9]
	switch typeCode {
	case 'C':
		return models.LegTypeCall, nil
	case 'P':
		return models.LegTypePut, nil
	default:
		return "", fmt.Errorf("unexpected type code %q in %s", typeCode, optionSymbol)
	}
}

// ParseOSIStrike extracts the strike price from an OSI option symbol.
func ParseOSIStrike(optionSymbol string) (float64, error) {
	s := strings.TrimSpace(optionSymbol)
	if len(s) < 16 {
		return 0, fmt.Errorf("symbol too short for OSI format")
	}
	digits := s[len(s)-8:]
	if !isEightDigits(digits) {
		return 0, fmt.Errorf("strike segment %q is not numeric", digits)
	}
	var v int64
	for _, c := range digits {
		v = v*10 + int64(c-'0')
	}
	return float64(v) / 1000, nil
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	return allDigits(s)
}

func isEightDigits(s string) bool {
	if len(s) != 8 {
		return false
	}
	return allDigits(s)
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
