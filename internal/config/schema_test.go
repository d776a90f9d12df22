package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultSchema(t *testing.T) {
	s := DefaultSchema()
	require.Equal(t, []string{SectionBridge, SectionLog}, s.Sections())
	require.True(t, s.IsKnown(SectionBridge, KeyCallTimeout))
	require.False(t, s.IsKnown(SectionLog, KeyCallTimeout))
	require.Nil(t, s.Lookup("", KeyLogLevel))

	opt := s.Lookup(SectionBridge, KeyFunctionCacheLimit)
	require.NotNil(t, opt)
	require.Equal(t, TypeInt, opt.Type)
	require.Equal(t, "200", opt.Default)
}

func TestSchema_Resolve(t *testing.T) {
	s := DefaultSchema()
	c, err := LoadFromReader(strings.NewReader("[log]\nlevel debug\n"))
	require.NoError(t, err)

	require.Equal(t, "debug", s.Resolve(c, SectionLog, KeyLogLevel))
	require.Equal(t, "text", s.Resolve(c, SectionLog, KeyLogFormat))
	require.Equal(t, "", s.Resolve(c, SectionLog, "unknown"))

	t.Setenv("JSBRIDGE_LOG_LEVEL", "error")
	require.Equal(t, "error", s.Resolve(c, SectionLog, KeyLogLevel))
	require.Equal(t, "error", s.Resolve(nil, SectionLog, KeyLogLevel))
}

func TestValidateType(t *testing.T) {
	require.NoError(t, validateType(TypeString, "anything"))
	require.NoError(t, validateType(TypeInt, "-3"))
	require.Error(t, validateType(TypeInt, "3.5"))
	require.NoError(t, validateType(TypeDuration, "1m30s"))
	require.Error(t, validateType(TypeBool, "sure"))
	require.Error(t, validateType("complex", "1"))
}

func TestSchema_FormatHelp(t *testing.T) {
	help := DefaultSchema().FormatHelp()
	require.True(t, strings.HasPrefix(help, "[bridge] Options:\n"), help)
	require.Contains(t, help, "\n[log] Options:\n")
	require.Contains(t, help, "call-timeout")
	require.Contains(t, help, "(type: duration, default: 0s, env: JSBRIDGE_CALL_TIMEOUT)")
}

func TestResolveSettings(t *testing.T) {
	c, err := LoadFromReader(strings.NewReader(sample))
	require.NoError(t, err)

	got, err := Resolve(c)
	require.NoError(t, err)
	require.Equal(t, &Settings{
		FunctionCacheLimit: 50,
		InterfacePrefix:    "App",
		CallTimeout:        2 * time.Second,
		LogLevel:           "debug",
		LogFormat:          "json",
		LogBuffer:          1000,
	}, got)
}

func TestResolveSettings_Defaults(t *testing.T) {
	got, err := Resolve(nil)
	require.NoError(t, err)
	require.Equal(t, 200, got.FunctionCacheLimit)
	require.Equal(t, "NativeBridge", got.InterfacePrefix)
	require.Zero(t, got.CallTimeout)
	require.False(t, got.StrictComposites)
	require.Equal(t, "info", got.LogLevel)
}

func TestResolveSettings_Invalid(t *testing.T) {
	for name, text := range map[string]string{
		"prefix not an identifier": "[bridge]\ninterface-prefix not-valid\n",
		"negative limit":           "[bridge]\nfunction-cache-limit -1\n",
		"negative timeout":         "[bridge]\ncall-timeout -1s\n",
		"unparseable limit":        "[bridge]\nfunction-cache-limit many\n",
		"unparseable bool":         "[bridge]\nstrict-composites perhaps\n",
		"unknown level":            "[log]\nlevel chatty\n",
		"unknown format":           "[log]\nformat xml\n",
	} {
		c, err := LoadFromReader(strings.NewReader(text))
		require.NoError(t, err, name)
		_, err = Resolve(c)
		require.Error(t, err, name)
	}
}
