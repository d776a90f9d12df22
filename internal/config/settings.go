package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/joeycumines/go-jsbridge/internal/value"
)

// Settings are the typed, validated options the bridge runs with.
type Settings struct {
	FunctionCacheLimit int           `validate:"gte=0,lte=1000000"`
	InterfacePrefix    string        `validate:"required,jsident"`
	CallTimeout        time.Duration `validate:"gte=0"`
	StrictComposites   bool
	LogLevel           string `validate:"oneof=debug info warn warning error"`
	LogFormat          string `validate:"oneof=text json"`
	LogBuffer          int    `validate:"gte=0"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("jsident", func(fl validator.FieldLevel) bool {
		return value.IsIdentifier(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Resolve reads Settings out of c through DefaultSchema. c may be nil, in
// which case only environment variables and defaults apply.
func Resolve(c *Config) (*Settings, error) {
	s := DefaultSchema()
	get := func(section, key string) string {
		return strings.TrimSpace(s.Resolve(c, section, key))
	}

	var errs []error
	atoi := func(section, key string) int {
		n, err := strconv.Atoi(get(section, key))
		if err != nil {
			errs = append(errs, fmt.Errorf("[%s] %s: %w", section, key, err))
		}
		return n
	}

	out := &Settings{
		FunctionCacheLimit: atoi(SectionBridge, KeyFunctionCacheLimit),
		InterfacePrefix:    get(SectionBridge, KeyInterfacePrefix),
		LogLevel:           strings.ToLower(get(SectionLog, KeyLogLevel)),
		LogFormat:          strings.ToLower(get(SectionLog, KeyLogFormat)),
		LogBuffer:          atoi(SectionLog, KeyLogBuffer),
	}

	var err error
	if out.CallTimeout, err = time.ParseDuration(get(SectionBridge, KeyCallTimeout)); err != nil {
		errs = append(errs, fmt.Errorf("[%s] %s: %w", SectionBridge, KeyCallTimeout, err))
	}
	if out.StrictComposites, err = parseBool(get(SectionBridge, KeyStrictComposites)); err != nil {
		errs = append(errs, fmt.Errorf("[%s] %s: %w", SectionBridge, KeyStrictComposites, err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := validate.Struct(out); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return out, nil
}
