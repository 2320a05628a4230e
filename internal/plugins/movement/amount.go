package movement

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	moveDecimals = 8
	octasPerMove = 100_000_000
)

// ParseMoveAmount converts a MOVE amount into octas without floating point rounding.
func ParseMoveAmount(v any) (uint64, error) {
	var raw string
	switch a := v.(type) {
	case string:
		raw = a
	case json.Number:
		raw = a.String()
	case float64:
		raw = strconv.FormatFloat(a, 'f', -1, 64)
	case int:
		raw = strconv.Itoa(a)
	case uint64:
		raw = strconv.FormatUint(a, 10)
	default:
		return 0, fmt.Errorf("unsupported amount %v", v)
	}
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "MOVE"))
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	if strings.ContainsAny(raw, "eE") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		raw = strconv.FormatFloat(f, 'f', -1, 64)
	}

	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > moveDecimals {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", raw, moveDecimals)
	}
	frac += strings.Repeat("0", moveDecimals-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return 0, fmt.Errorf("amount must be positive")
	}
	octas, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q out of range", raw)
	}
	return octas, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatOctas renders an octa amount as MOVE with trailing zeros removed.
func FormatOctas(octas uint64) string {
	whole := octas / octasPerMove
	frac := octas % octasPerMove
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fracText := strings.TrimRight(fmt.Sprintf("%0*d", moveDecimals, frac), "0")
	return fmt.Sprintf("%d.%s", whole, fracText)
}
