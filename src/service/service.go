// Package service exposes the network control server: a plaintext TCP
// interface for querying node status and toggling individual nodes while a
// test is in progress. It is a loopback-only debug interface with no
// authentication and no encryption; never expose it across an untrusted
// network.
package service

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/mobilecoinofficial/mcnet/src/node"
	"github.com/sirupsen/logrus"
)

const prompt = "> "

// Orchestrator is the non-owning view of the network the control server
// dispatches against.
type Orchestrator interface {
	// Nodes returns all nodes, in declaration order.
	Nodes() []*node.Node

	// GetNode returns the node with the given name, or nil.
	GetNode(name string) *node.Node

	// RestartNode stops and starts a node. Stop-then-start makes the control
	// protocol's start command idempotent.
	RestartNode(n *node.Node) error
}

// Server is the control server. It owns its listener and its goroutines;
// the network it dispatches against is borrowed.
type Server struct {
	network  Orchestrator
	listener net.Listener
	logger   *logrus.Entry
	shutdown int32
}

// NewServer starts a control server listening on addr. The accept loop runs
// in a background goroutine until Shutdown is called.
func NewServer(addr string, network Orchestrator, logger *logrus.Entry) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		network:  network,
		listener: listener,
		logger:   logger.WithField("prefix", "control"),
	}

	go s.listen()

	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown closes the listener. Connections that are mid-command finish
// their current dispatch and then fail on the next read.
func (s *Server) Shutdown() {
	atomic.StoreInt32(&s.shutdown, 1)
	s.listener.Close()
}

func (s *Server) isShutdown() bool {
	return atomic.LoadInt32(&s.shutdown) == 1
}

func (s *Server) listen() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShutdown() {
				return
			}
			s.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}

		s.logger.WithField("from", conn.RemoteAddr()).Debug("Accepted control connection")

		go s.handleConn(conn)
	}
}

// handleConn runs the per-connection read loop. I/O errors close the
// connection without further ceremony.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	send := func(text string) bool {
		if _, err := writer.WriteString(text); err != nil {
			return false
		}
		return writer.Flush() == nil
	}

	if !send(prompt) {
		return
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !send(s.dispatch(parseCommand(line)) + prompt) {
			return
		}
	}
}

// dispatch executes a single command and returns the response text.
func (s *Server) dispatch(cmd command) string {
	switch c := cmd.(type) {
	case statusCommand:
		var reply strings.Builder
		for _, n := range s.network.Nodes() {
			fmt.Fprintf(&reply, "%s: %s\n", n.Name, n.Status())
		}
		return reply.String()

	case stopCommand:
		n := s.network.GetNode(c.name)
		if n == nil {
			return fmt.Sprintf("Unknown node %s\n", c.name)
		}
		n.Stop()
		return fmt.Sprintf("Stopped %s.\n", c.name)

	case startCommand:
		n := s.network.GetNode(c.name)
		if n == nil {
			return fmt.Sprintf("Unknown node %s\n", c.name)
		}
		if err := s.network.RestartNode(n); err != nil {
			s.logger.WithField("error", err).Errorf("Failed to start %s", c.name)
			return fmt.Sprintf("Failed to start %s: %v\n", c.name, err)
		}
		return fmt.Sprintf("Started %s.\n", c.name)

	case unknownCommand:
		return "Unknown command\n"

	default:
		return "Unknown command\n"
	}
}
