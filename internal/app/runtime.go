package app

import (
	"os"
	"strconv"
	"strings"
)

// TestModeEnv makes the binaries exit before touching Postgres, Redis or SMTP.
const TestModeEnv = "GANACSI_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value.
func InTestMode() bool {
	return testModeFrom(os.LookupEnv)
}

func testModeFrom(lookup func(string) (string, bool)) bool {
	raw, ok := lookup(TestModeEnv)
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && on
}
