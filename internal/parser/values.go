package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern  = regexp.MustCompile(`\d[\d.,\s\x{00a0}\x{202f}]*`)
	ratingPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"€", "EUR"},
	{"EUR", "EUR"},
	{"£", "GBP"},
	{"₽", "RUB"},
	{"руб", "RUB"},
	{"US$", "USD"},
	{"$", "USD"},
}

// parsePrice reads the first amount in s. Both "1.299,00 €" and "$1,299.00"
// styles are understood. It returns nil when s holds no positive amount.
func parsePrice(s string) (*float64, string) {
	match := pricePattern.FindString(s)
	if match == "" {
		return nil, ""
	}

	amount, ok := parseDecimal(match)
	if !ok || amount <= 0 {
		return nil, ""
	}

	currency := ""
	for _, c := range currencySymbols {
		if strings.Contains(s, c.symbol) {
			currency = c.code
			break
		}
	}

	return &amount, currency
}

// parseRating reads ratings like "4.5 out of 5 stars" or "4,5 von 5 Sternen".
func parseRating(s string) *float64 {
	match := ratingPattern.FindString(s)
	if match == "" {
		return nil
	}

	rating, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil || rating < 0 || rating > 5 {
		return nil
	}
	return &rating
}

// parseCount reads review counts like "(1,234)" or "1.234 Bewertungen".
func parseCount(s string) int {
	match := pricePattern.FindString(s)
	if match == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range match {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

func parseDecimal(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, ".,")

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	var decimalSep byte
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			decimalSep = '.'
		} else {
			decimalSep = ','
		}
	case lastDot >= 0:
		decimalSep = decimalOrThousands(s, '.')
	case lastComma >= 0:
		decimalSep = decimalOrThousands(s, ',')
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == decimalSep:
			b.WriteByte('.')
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// decimalOrThousands decides whether the only separator kind in s marks
// decimals: it must occur once and be followed by one or two digits.
func decimalOrThousands(s string, sep byte) byte {
	if strings.Count(s, string(sep)) > 1 {
		return 0
	}
	if digits := len(s) - strings.LastIndexByte(s, sep) - 1; digits == 1 || digits == 2 {
		return sep
	}
	return 0
}
