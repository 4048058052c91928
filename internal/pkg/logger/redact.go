package logger

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`[\p{L}\p{N}._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// contactKeys are log fields that carry one contact value as a whole.
var contactKeys = map[string]bool{
	"email":     true,
	"ref_id":    true,
	"name":      true,
	"full_name": true,
}

// RedactEmail keeps the first two characters of the local part and the
// domain: "john.doe@example.com" becomes "jo***@example.com". Local parts
// of two characters or fewer are masked entirely.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if utf8.RuneCountInString(local) > 2 {
		_, n1 := utf8.DecodeRuneInString(local)
		_, n2 := utf8.DecodeRuneInString(local[n1:])
		return local[:n1+n2] + "***@" + domain
	}
	return "***@" + domain
}

// RedactName keeps only the first character of each word.
func RedactName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		words[i] = string(r) + "***"
	}
	return strings.Join(words, " ")
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case contactKeys[key] && strings.Count(val, "@") == 1 && !strings.ContainsAny(val, " ,"):
		return RedactEmail(val)
	case contactKeys[key] && strings.Contains(key, "name"):
		return RedactName(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
