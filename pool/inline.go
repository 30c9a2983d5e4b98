package pool

import "github.com/google/uuid"

// InlineCallable is an ad-hoc function submitted directly instead of a
// registered method name.
//
// Go cannot serialize a closure to source the way a dynamic-language
// runtime can, so this is adapted: the Dispatcher keeps a registry mapping
// a generated token to the callable, and rewrites the submission to
// ("run", [token, params]). A worker transport that wants to execute
// inline callables consults Dispatcher.InlineCallable(token) through its
// own out-of-scope RPC mechanism — the core's only contractual duty is the
// rewrite rule itself.
type InlineCallable func(params []any) (any, error)

func (d *Dispatcher) registerInline(fn InlineCallable) string {
	token := uuid.NewString()
	d.inlineMu.Lock()
	d.inline[token] = fn
	d.inlineMu.Unlock()
	return token
}

// InlineCallable looks up a previously-registered inline callable by the
// token produced by the ("run", [token, params]) rewrite.
func (d *Dispatcher) InlineCallable(token string) (InlineCallable, bool) {
	d.inlineMu.Lock()
	defer d.inlineMu.Unlock()
	fn, ok := d.inline[token]
	return fn, ok
}
