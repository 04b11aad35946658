package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cryguy/webbridge/internal/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WEBBRIDGE_"

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// mergeEnv applies WEBBRIDGE_* overrides. Unparsable values are logged and
// ignored.
func mergeEnv(cfg *Config, lookup LookupFunc) {
	e := envReader{lookup: lookup, log: log.WithComponent("config")}
	e.str("LISTEN", &cfg.Listen)
	e.str("CAPABILITY", &cfg.Capability)
	e.dur("PROMISE_TIMEOUT", &cfg.PromiseTimeout)
	e.boolean("AUTO_INJECT", &cfg.AutoInjectBridge)
	e.str("VIEWPORT", &cfg.ViewPort)
	e.str("APP_ROOT", &cfg.AppRoot)
	e.integer("MEMORY_LIMIT_MB", &cfg.MemoryLimitMB)
	e.dur("EVAL_TIMEOUT", &cfg.EvalTimeout)
	e.str("RESOURCE_DB", &cfg.ResourceDB)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.list("AUTOLOAD_SCRIPTS", &cfg.AutoLoadScripts)
	e.list("AUTOLOAD_STYLESHEETS", &cfg.AutoLoadStyleSheets)
}

type envReader struct {
	lookup LookupFunc
	log    zerolog.Logger
}

func (e envReader) get(name string) (string, string, bool) {
	key := EnvPrefix + name
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return key, "", false
	}
	e.log.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
	return key, v, true
}

func (e envReader) str(name string, dst *string) {
	if _, v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e envReader) list(name string, dst *[]string) {
	_, v, ok := e.get(name)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e envReader) integer(name string, dst *int) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment variable, keeping current value")
		return
	}
	*dst = i
}

func (e envReader) dur(name string, dst *time.Duration) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment variable, keeping current value")
		return
	}
	*dst = d
}

func (e envReader) boolean(name string, dst *bool) {
	key, v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment variable, keeping current value")
		return
	}
	*dst = b
}
