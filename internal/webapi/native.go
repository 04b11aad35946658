package webapi

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

const androidJS = `
globalThis.androidWebViewBridge = {
	emitEvent: function(eventName, data) {
		__native_emit(String(eventName), typeof data === 'string' ? data : JSON.stringify(data));
	}
};
`

const webkitJS = `
globalThis.webkit = {
	messageHandlers: {
		nsBridge: {
			postMessage: function(message) {
				__native_post(typeof message === 'string' ? message : JSON.stringify(message));
			}
		}
	}
};
`

// SetupNative installs the platform object a page uses to signal the host.
// Legacy pages get nothing: they signal through iframe navigation.
func SetupNative(rt core.JSRuntime, _ *eventloop.EventLoop, capability core.Capability, host PageHost) error {
	switch capability {
	case core.CapabilityAndroid:
		if err := rt.RegisterFunc("__native_emit", func(eventName, data string) {
			host.EmitEvent(eventName, data)
		}); err != nil {
			return err
		}
		return rt.Eval(androidJS)
	case core.CapabilityWebKit:
		if err := rt.RegisterFunc("__native_post", func(message string) {
			host.PostMessage(message)
		}); err != nil {
			return err
		}
		return rt.Eval(webkitJS)
	}
	return nil
}
