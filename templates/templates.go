// Package templates registers the Handlebars helpers available inside
// test case prompts and SQL. Helpers generate dynamic values at load
// time, so the same test file can exercise fresh data on every run.
package templates

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var registerOnce sync.Once

// RegisterHelpers installs the helper set into raymond's global registry.
// Raymond panics on duplicate registration, so this must run exactly once
// per process.
func RegisterHelpers() {
	registerOnce.Do(registerHelpers)
}

func registerHelpers() {
	raymond.RegisterHelper("uuid", func() string {
		return uuid.NewString()
	})

	raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
		length := 10
		if v := options.HashStr("length"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				length = n
			}
		}
		value := randomString(alphanumericChars, length)
		if raymond.IsTrue(options.HashProp("uppercase")) {
			value = strings.ToUpper(value)
		}
		return value
	})

	raymond.RegisterHelper("randomInt", func(options *raymond.Options) string {
		lower := hashInt(options, "lower", 0)
		upper := hashInt(options, "upper", 100)
		if lower > upper {
			lower, upper = upper, lower
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(upper-lower+1)))
		if err != nil {
			return "0"
		}
		return strconv.Itoa(int(n.Int64()) + lower)
	})

	raymond.RegisterHelper("fakeName", func() string {
		return gofakeit.Name()
	})

	raymond.RegisterHelper("fakeEmail", func() string {
		return gofakeit.Email()
	})

	raymond.RegisterHelper("fakeCompany", func() string {
		return gofakeit.Company()
	})

	raymond.RegisterHelper("today", func() string {
		return time.Now().Format("2006-01-02")
	})
}

func hashInt(options *raymond.Options, name string, fallback int) int {
	v := options.HashProp(name)
	if v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}

func randomString(charset string, length int) string {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(charset)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return b.String()
		}
		b.WriteByte(charset[n.Int64()])
	}
	return b.String()
}
