//go:build v8

package headless

import "github.com/cryguy/webbridge/internal/v8engine"

var testRuntime RuntimeFactory = v8engine.NewRuntime
