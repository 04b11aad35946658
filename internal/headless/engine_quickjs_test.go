//go:build !v8

package headless

import "github.com/cryguy/webbridge/internal/quickjs"

var testRuntime RuntimeFactory = quickjs.NewRuntime
