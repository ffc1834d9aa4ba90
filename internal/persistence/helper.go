package persistence

import (
	"regexp"
	"strings"
)

var isSessionID = regexp.MustCompile(`^[A-Za-z0-9\-\_]+$`).MatchString

func ValidateSessionID(id string) error {
	if CheckStringEmpty(id) {
		return ErrSessionIDEmpty
	}
	if !isSessionID(id) {
		return ErrSessionInvalid
	}
	return nil
}

func CheckStringEmpty(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) == 0
}
