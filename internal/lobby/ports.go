package lobby

import (
	"errors"
	"fmt"
	"net"
)

// ErrPortsExhausted is returned when no port in the configured range can be
// committed.
var ErrPortsExhausted = errors.New("lobby: game server port range exhausted")

// allocatePort scans the configured range, skipping committed ports and
// bind-probing each candidate; the first bindable port is committed to
// usedPorts and returned.
func (s *Server) allocatePort() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for port := s.cfg.GamePortMin; port < s.cfg.GamePortMax; port++ {
		if _, used := s.usedPorts[port]; used {
			continue
		}
		probe, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.BindAddress, port))
		if err != nil {
			continue
		}
		probe.Close()
		s.usedPorts[port] = struct{}{}
		return port, nil
	}
	return 0, ErrPortsExhausted
}

// releasePort returns a port to the pool. Caller holds s.mu.
func (s *Server) releasePortLocked(port int) {
	delete(s.usedPorts, port)
}
