// Package dist implements the distributed merge controller and worker of
// spec.md §4.6/§4.7: a request/response protocol that fans cluster-set
// merges across a fleet, splits oversize mergers into partial jobs,
// reassembles partial results, and schedules terminal all-all alignment
// work. The pack carries no ZMQ (or similar message-queue) binding, so the
// socket roles spec.md §5 names are carried over plain TCP as one persistent
// request/response connection per worker plus the set-request listener
// (encoding/gob-free, framed with internal/wire) — see DESIGN.md for why no
// pack dependency could stand in for ZMQ here.
package dist

import (
	"net"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"github.com/alpae/clustermerge/internal/wire"
)

// ServerConfig mirrors spec.md §6's server config JSON.
type ServerConfig struct {
	Controller        string
	RequestQueuePort  int
	ResponseQueuePort int
	SetRequestPort    int
}

// DefaultServerConfig matches spec.md §6's documented port defaults.
func DefaultServerConfig(controller string) ServerConfig {
	return ServerConfig{
		Controller:        controller,
		RequestQueuePort:  5555,
		ResponseQueuePort: 5556,
		SetRequestPort:    5557,
	}
}

// sendRequest frames and writes req to conn.
func sendRequest(conn net.Conn, req wire.Request) error {
	if err := wire.WriteFrame(conn, wire.MarshalRequest(req)); err != nil {
		return errors.E(errors.Internal, "dist: send request:", err)
	}
	return nil
}

// recvRequest reads and decodes one request frame from conn.
func recvRequest(conn net.Conn) (wire.Request, error) {
	buf, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Request{}, errors.E(errors.Internal, "dist: recv request:", err)
	}
	req, err := wire.UnmarshalRequest(buf)
	if err != nil {
		return wire.Request{}, errors.E(errors.Invalid, "dist: decode request:", err)
	}
	return req, nil
}

// sendResponse frames and writes resp to conn.
func sendResponse(conn net.Conn, resp wire.Response) error {
	if err := wire.WriteFrame(conn, wire.MarshalResponse(resp)); err != nil {
		return errors.E(errors.Internal, "dist: send response:", err)
	}
	return nil
}

// recvResponse reads and decodes one response frame from conn.
func recvResponse(conn net.Conn) (wire.Response, error) {
	buf, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Response{}, errors.E(errors.Internal, "dist: recv response:", err)
	}
	resp, err := wire.UnmarshalResponse(buf)
	if err != nil {
		return wire.Response{}, errors.E(errors.Invalid, "dist: decode response:", err)
	}
	return resp, nil
}

// listen opens a TCP listener on the given port. A bind failure is returned
// as an Internal error (spec.md §7) and is not retried; only a successful
// bind is logged.
func listen(port int) (net.Listener, error) {
	l, err := net.Listen("tcp", portAddr(port))
	if err != nil {
		return nil, errors.E(errors.Internal, "dist: bind", portAddr(port), ":", err)
	}
	log.Debug.Printf("dist: listening on %s", portAddr(port))
	return l, nil
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
