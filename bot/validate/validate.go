// Package validate normalizes and checks raw user replies before they reach
// the conversation engine. Each validator returns the normalized value plus
// an empty message on success, or a user-facing Russian message describing
// what to fix.
package validate

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	// MsgBadName prompts after a malformed full name.
	MsgBadName = "❌ Имя должно содержать от 3 до 100 символов (только буквы, пробелы и дефисы). Попробуйте ещё раз:"
	// MsgBadPhone prompts after a malformed personal phone number.
	MsgBadPhone = "❌ Неверный формат номера телефона. Введите от 10 до 15 цифр:"
	// MsgBadTruck prompts after a malformed truck number.
	MsgBadTruck = "❌ Номер машины должен содержать от 3 до 20 символов (буквы, цифры, пробелы и дефисы). Попробуйте ещё раз:"
	// MsgWeightNotANumber prompts when the weight reply does not parse.
	MsgWeightNotANumber = "❌ Не удалось распознать вес. Введите число, например: 12500 или 12500.5"
	// MsgWeightNegative prompts when a parsed weight is below zero.
	MsgWeightNegative = "❌ Вес не может быть отрицательным. Введите вес ещё раз:"
)

// Name validates a driver's full name: 3 to 100 characters of Cyrillic or
// Latin letters, spaces and hyphens. Leading and trailing spaces are trimmed.
func Name(raw string) (string, string) {
	name := strings.TrimSpace(raw)
	runes := []rune(name)
	if len(runes) < 3 || len(runes) > 100 {
		return "", MsgBadName
	}
	for _, r := range runes {
		if isLetter(r) || r == ' ' || r == '-' {
			continue
		}
		return "", MsgBadName
	}
	return name, ""
}

// Phone validates a personal phone number. Spaces, dashes, parentheses and a
// leading plus are stripped; 10 to 15 digits must remain. The normalized
// value is digits only.
func Phone(raw string) (string, string) {
	var digits strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '+':
			// separator, skip
		default:
			return "", MsgBadPhone
		}
	}
	phone := digits.String()
	if len(phone) < 10 || len(phone) > 15 {
		return "", MsgBadPhone
	}
	return phone, ""
}

// Truck validates a truck registration number: 3 to 20 characters of
// letters, digits, spaces and hyphens. The normalized value is uppercased.
func Truck(raw string) (string, string) {
	truck := strings.ToUpper(strings.TrimSpace(raw))
	runes := []rune(truck)
	if len(runes) < 3 || len(runes) > 20 {
		return "", MsgBadTruck
	}
	for _, r := range runes {
		if isLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' {
			continue
		}
		return "", MsgBadTruck
	}
	return truck, ""
}

// Weight parses a weight in kilograms. A decimal comma is accepted as a
// decimal point and inner spaces are ignored, so "12 500,5" reads as
// 12500.5. Unparsable input and negative values fail with distinct
// messages. Zero is a valid weight (empty scale).
func Weight(raw string) (float64, string) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, MsgWeightNotANumber
	}
	w, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, MsgWeightNotANumber
	}
	if w < 0 {
		return 0, MsgWeightNegative
	}
	return w, ""
}

func isLetter(r rune) bool {
	if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
		return true
	}
	// Cyrillic letters including Ё/ё.
	return unicode.Is(unicode.Cyrillic, r)
}
