package utils

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// DigitsOnly strips every non-digit rune. Documents and postal codes are
// always stored and compared in this form.
func DigitsOnly(s string) string {
	return nonDigits.ReplaceAllString(s, "")
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// IsValidCPF validates a natural-person document (11 digits, two check digits).
func IsValidCPF(cpf string) bool {
	cpf = DigitsOnly(cpf)
	if len(cpf) != 11 || allSameDigit(cpf) {
		return false
	}
	for _, n := range []int{9, 10} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cpf[i]-'0') * (n + 1 - i)
		}
		digit := (sum * 10) % 11
		if digit == 10 {
			digit = 0
		}
		if digit != int(cpf[n]-'0') {
			return false
		}
	}
	return true
}

// IsValidCNPJ validates a legal-entity document (14 digits, two check digits).
func IsValidCNPJ(cnpj string) bool {
	cnpj = DigitsOnly(cnpj)
	if len(cnpj) != 14 || allSameDigit(cnpj) {
		return false
	}
	weights := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	for _, n := range []int{12, 13} {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(cnpj[i]-'0') * weights[len(weights)-n+i]
		}
		digit := sum % 11
		if digit < 2 {
			digit = 0
		} else {
			digit = 11 - digit
		}
		if digit != int(cnpj[n]-'0') {
			return false
		}
	}
	return true
}

var cepPattern = regexp.MustCompile(`^\d{5}-?\d{3}$`)

// IsValidCEP validates a postal code: eight digits, hyphen optional.
func IsValidCEP(cep string) bool {
	return cepPattern.MatchString(strings.TrimSpace(cep))
}
