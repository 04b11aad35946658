//go:build v8

package webbridge

import (
	"github.com/cryguy/webbridge/internal/headless"
	"github.com/cryguy/webbridge/internal/v8engine"
)

// EngineName names the JS engine behind headless pages.
const EngineName = "v8"

var newRuntime headless.RuntimeFactory = v8engine.NewRuntime
