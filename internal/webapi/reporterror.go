package webapi

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// reportErrorJS exposes the page's uncaught-error path as reportError: the
// error goes to the console and an ErrorEvent is dispatched on window.
const reportErrorJS = `
globalThis.reportError = function(error) {
	if (arguments.length === 0) throw new TypeError("reportError: 1 argument required, but only 0 present.");
	globalThis.__reportError(error);
};
`

// SetupReportError installs reportError. It expects SetupWindow to have run.
func SetupReportError(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(reportErrorJS); err != nil {
		return fmt.Errorf("evaluating reporterror.js: %w", err)
	}
	return nil
}
