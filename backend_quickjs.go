//go:build !v8

package webbridge

import (
	"github.com/cryguy/webbridge/internal/headless"
	"github.com/cryguy/webbridge/internal/quickjs"
)

// EngineName names the JS engine behind headless pages.
const EngineName = "quickjs"

var newRuntime headless.RuntimeFactory = quickjs.NewRuntime
