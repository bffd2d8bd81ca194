package service_test

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mobilecoinofficial/mcnet/src/config"
	"github.com/mobilecoinofficial/mcnet/src/keys"
	"github.com/mobilecoinofficial/mcnet/src/network"
	"github.com/mobilecoinofficial/mcnet/src/service"
)

const prompt = "> "

func newTestNetwork(t *testing.T) *network.Network {
	dir, err := ioutil.TempDir("", "mcnet")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	conf := config.NewDefaultConfig()
	conf.WorkDir = filepath.Join(dir, "work")
	conf.BinDir = filepath.Join(dir, "bin")
	conf.LogLevel = "error"
	conf.PollInterval = 10 * time.Millisecond

	if err := os.MkdirAll(conf.BinDir, 0755); err != nil {
		t.Fatalf("err: %v", err)
	}

	testNet, err := network.Build(conf, keys.NewInmemProvider(), "a-b-c")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return testNet
}

func newTestServer(t *testing.T, orch service.Orchestrator) (*service.Server, net.Conn, *bufio.Reader) {
	conf := config.NewDefaultConfig()
	conf.LogLevel = "error"

	srv, err := service.NewServer("127.0.0.1:0", orch, conf.Logger())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	conn.SetDeadline(time.Now().Add(10 * time.Second))

	return srv, conn, bufio.NewReader(conn)
}

// readReply reads everything up to and including the next prompt and
// returns it with the prompt stripped.
func readReply(t *testing.T, reader *bufio.Reader) string {
	var reply strings.Builder
	for {
		b, err := reader.ReadByte()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		reply.WriteByte(b)

		if strings.HasSuffix(reply.String(), prompt) {
			return strings.TrimSuffix(reply.String(), prompt)
		}
	}
}

func send(t *testing.T, conn net.Conn, line string) {
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestControlStatus(t *testing.T) {
	testNet := newTestNetwork(t)
	_, conn, reader := newTestServer(t, testNet)

	// The server greets with a prompt.
	if reply := readReply(t, reader); reply != "" {
		t.Fatalf("greeting: %q", reply)
	}

	send(t, conn, "status")
	reply := readReply(t, reader)

	lines := strings.Split(strings.TrimSuffix(reply, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("status lines: %q", lines)
	}

	statusLine := regexp.MustCompile(`^[a-c]: (stopped|running, pid=\d+|exited)$`)
	for _, line := range lines {
		if !statusLine.MatchString(line) {
			t.Fatalf("malformed status line %q", line)
		}
	}
}

func TestControlStopAndUnknowns(t *testing.T) {
	testNet := newTestNetwork(t)
	_, conn, reader := newTestServer(t, testNet)
	readReply(t, reader)

	// stop is idempotent even on a node that never ran.
	send(t, conn, "stop b")
	if reply := readReply(t, reader); reply != "Stopped b.\n" {
		t.Fatalf("reply: %q", reply)
	}

	send(t, conn, "stop ghost")
	if reply := readReply(t, reader); reply != "Unknown node ghost\n" {
		t.Fatalf("reply: %q", reply)
	}

	send(t, conn, "frobnicate")
	if reply := readReply(t, reader); reply != "Unknown command\n" {
		t.Fatalf("reply: %q", reply)
	}

	send(t, conn, "start ghost")
	if reply := readReply(t, reader); reply != "Unknown node ghost\n" {
		t.Fatalf("reply: %q", reply)
	}
}

func TestControlEmptyLinesIgnored(t *testing.T) {
	testNet := newTestNetwork(t)
	_, conn, reader := newTestServer(t, testNet)
	readReply(t, reader)

	// Blank input produces no reply; the next real command still works.
	send(t, conn, "")
	send(t, conn, "   ")
	send(t, conn, "status")

	reply := readReply(t, reader)
	if !strings.Contains(reply, "a: stopped") {
		t.Fatalf("reply: %q", reply)
	}
}

func TestControlMultipleConnections(t *testing.T) {
	testNet := newTestNetwork(t)
	srv, conn, reader := newTestServer(t, testNet)
	readReply(t, reader)

	conn2, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer conn2.Close()
	conn2.SetDeadline(time.Now().Add(10 * time.Second))
	reader2 := bufio.NewReader(conn2)
	readReply(t, reader2)

	send(t, conn, "status")
	readReply(t, reader)

	send(t, conn2, "status")
	readReply(t, reader2)
}
