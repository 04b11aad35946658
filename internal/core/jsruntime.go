package core

// JSRuntime abstracts the JavaScript engine (QuickJS or V8) that backs a
// headless page. Setup functions in internal/webapi and the page event
// loop in internal/eventloop only talk to the engine through it.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// EvalInt evaluates JavaScript and returns the result as a Go int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// A (T, error) return unwraps to T, or throws a TypeError on error.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	RunMicrotasks()

	// Close releases the engine. The runtime is unusable afterwards.
	Close()
}

// Interrupter is implemented by runtimes that can abort a running script
// from another goroutine.
type Interrupter interface {
	Interrupt()
}
