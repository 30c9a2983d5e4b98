package pool

import "github.com/pkg/errors"

// MethodProxy maps a registered method name to a bound callable that
// submits that method.
type MethodProxy map[string]func(params []any, options TaskOptions) (*Future, error)

// Proxy resolves to a MethodProxy by invoking the worker-provided "methods"
// introspection call and building the mapping from the returned name list,
// instead of hardcoding one forwarding function per method.
func (d *Dispatcher) Proxy() (*Future, error) {
	methodsFuture, err := d.Submit("methods", nil, TaskOptions{})
	if err != nil {
		return nil, err
	}

	result := NewFuture()
	methodsFuture.Then(func(v any, err error) {
		if err != nil {
			result.Reject(err)
			return
		}
		names, ok := v.([]string)
		if !ok {
			result.Reject(errors.New("pool: \"methods\" introspection returned an unexpected shape"))
			return
		}

		proxy := make(MethodProxy, len(names))
		for _, name := range names {
			name := name
			proxy[name] = func(params []any, options TaskOptions) (*Future, error) {
				return d.Submit(name, params, options)
			}
		}
		result.Resolve(proxy)
	})
	return result, nil
}
