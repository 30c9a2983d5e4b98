package transport

import "net"

// OSPortAllocator hands out real OS-assigned TCP ports: bind to ":0" and
// read back what the kernel chose. Unlike pool.DebugPortAllocator (pure
// in-memory bookkeeping the dispatcher core uses to keep live workers'
// debug ports distinct), this is for a transport that needs an actual
// listening port to hand a child process — e.g. a worker exposing its own
// health/control endpoint.
type OSPortAllocator struct{}

// NextFreePort asks the OS for an available TCP port by binding to
// 127.0.0.1:0 and immediately releasing it.
func (OSPortAllocator) NextFreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
