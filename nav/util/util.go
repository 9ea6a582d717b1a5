package util

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "nav.util")

func DebugEnabled() bool {
	return etb("NAV_DEBUG")
}

func HttpTraceEnabled() bool {
	return etb("NAV_HTTP_TRACE")
}

func etb(envName string) bool {
	v, ok := os.LookupEnv(envName)
	if !ok {
		return false
	}

	bv, err := strconv.ParseBool(v)

	return err == nil && bv
}

func GetEnvOrFailed(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		logger.Fatal(key, " environment variable is not set")
	}
	return v
}

var eightDigits = regexp.MustCompile(`\d{8}`)
var nonDigits = regexp.MustCompile(`\D+`)

// NormalizeTaxNumber reduces a Hungarian tax number in any customary
// writing (HU12345678, 12345678-1-29, spaces) to the 8 digit form the
// NAV services expect. Returns "" when no 8 digits can be found.
func NormalizeTaxNumber(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "HU")

	if m := eightDigits.FindString(s); m != "" {
		return m
	}

	only := nonDigits.ReplaceAllString(s, "")
	if len(only) >= 8 {
		return only[:8]
	}
	return ""
}
