package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorchedearth/scorched/serp"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.ErrorIs(t, <-served, ErrServerClosed)
	})
	return srv
}

// rawRequest sends a request line and returns the connection and the first
// response line.
func rawRequest(t *testing.T, addr, line string) (net.Conn, *bufio.Reader, string) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Write([]byte(line))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	r := bufio.NewReader(conn)
	resp, err := r.ReadString('\n')
	require.NoError(t, err)
	return conn, r, resp
}

type hostResult struct {
	stream *serp.Stream
	err    error
}

func hostAsync(ctx context.Context, addr, id string) <-chan hostResult {
	res := make(chan hostResult, 1)
	go func() {
		s, err := serp.Host(ctx, addr, id)
		res <- hostResult{s, err}
	}()
	return res
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAddress, cfg.Address)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)

	cfg = Config{Address: "nope"}
	assert.Error(t, cfg.Validate())

	cfg = Config{MaxConns: -1}
	assert.Error(t, cfg.Validate())

	cfg = Config{SweepInterval: -time.Second}
	assert.Error(t, cfg.Validate())
}

func TestServeBeforeListen(t *testing.T) {
	srv, err := NewServer(Config{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	assert.Nil(t, srv.Addr())
	assert.ErrorIs(t, srv.Serve(), ErrNotListening)
}

func TestPairing(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	res := hostAsync(context.Background(), addr, "room")
	require.Eventually(t, func() bool { return srv.Rooms() == 1 }, 5*time.Second, 10*time.Millisecond)

	joiner, err := serp.Join(context.Background(), addr, "room")
	require.NoError(t, err)
	defer joiner.Close()

	h := <-res
	require.NoError(t, h.err)
	host := h.stream
	defer host.Close()
	assert.Zero(t, srv.Rooms())

	_, err = host.Write([]byte("from host"))
	require.NoError(t, err)
	buf := make([]byte, len("from host"))
	_, err = io.ReadFull(joiner, buf)
	require.NoError(t, err)
	assert.Equal(t, "from host", string(buf))

	_, err = joiner.Write([]byte("from joiner"))
	require.NoError(t, err)
	buf = make([]byte, len("from joiner"))
	_, err = io.ReadFull(host, buf)
	require.NoError(t, err)
	assert.Equal(t, "from joiner", string(buf))

	// one side leaving ends the other
	require.NoError(t, joiner.Close())
	require.NoError(t, host.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = host.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestHostTwice(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := hostAsync(ctx, addr, "room")
	require.Eventually(t, func() bool { return srv.Rooms() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := serp.Host(context.Background(), addr, "room")
	assert.ErrorIs(t, err, serp.ErrRoomExists)

	cancel()
	assert.ErrorIs(t, (<-res).err, context.Canceled)
}

func TestHostRace(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	const rounds, racers = 5, 8
	for i := 0; i < rounds; i++ {
		id := fmt.Sprintf("race%d", i)

		conns := make([]net.Conn, racers)
		for j := range conns {
			conn, err := net.Dial("tcp", addr)
			require.NoError(t, err)
			t.Cleanup(func() { _ = conn.Close() })
			conns[j] = conn
		}

		start := make(chan struct{})
		resps := make(chan string, racers)
		for _, conn := range conns {
			go func() {
				<-start
				_, _ = conn.Write([]byte("host " + id + "\n"))
				_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
				resp, _ := bufio.NewReader(conn).ReadString('\n')
				resps <- resp
			}()
		}
		close(start)

		var ok, fail int
		for range conns {
			switch <-resps {
			case serp.RespOK:
				ok++
			case serp.RespFail:
				fail++
			}
		}
		assert.Equal(t, 1, ok, id)
		assert.Equal(t, racers-1, fail, id)
		// the winner is still waiting
		assert.Equal(t, i+1, srv.Rooms())
	}
}

func TestJoinMissingRoom(t *testing.T) {
	srv := startServer(t, Config{})

	start := time.Now()
	_, err := serp.Join(context.Background(), srv.Addr().String(), "nobody")
	assert.ErrorIs(t, err, serp.ErrRoomDoesntExist)
	assert.Less(t, time.Since(start), serp.AckTimeout)
}

func TestStaleHostIsReplaced(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	conn, _, resp := rawRequest(t, addr, "host room\n")
	require.Equal(t, serp.RespOK, resp)
	require.NoError(t, conn.Close())

	// the new host gets in once the relay notices the old one is gone
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_, _ = conn.Write([]byte("host room\n"))
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		resp, _ := bufio.NewReader(conn).ReadString('\n')
		if resp != serp.RespOK {
			_ = conn.Close()
			return false
		}
		t.Cleanup(func() { _ = conn.Close() })
		return true
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, srv.Rooms())
}

func TestInvalidRequest(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	for _, line := range []string{"hello\n", "host\n", "host a b\n", "join room\n"} {
		_, _, resp := rawRequest(t, addr, line)
		assert.Equal(t, serp.RespInvalid, resp, line)
	}
	assert.Zero(t, srv.Rooms())
}

func TestRequestTimeout(t *testing.T) {
	srv := startServer(t, Config{RequestTimeout: 100 * time.Millisecond})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, serp.RespInvalid, resp)
}

func TestRoomRemovedAfterSession(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	res := hostAsync(context.Background(), addr, "room")
	require.Eventually(t, func() bool { return srv.Rooms() == 1 }, 5*time.Second, 10*time.Millisecond)

	joiner, err := serp.Join(context.Background(), addr, "room")
	require.NoError(t, err)
	h := <-res
	require.NoError(t, h.err)

	require.NoError(t, joiner.Close())
	require.NoError(t, h.stream.Close())

	_, err = serp.Join(context.Background(), addr, "room")
	assert.ErrorIs(t, err, serp.ErrRoomDoesntExist)
}

func TestHostBytesBeforeJoin(t *testing.T) {
	srv := startServer(t, Config{})
	addr := srv.Addr().String()

	conn, r, resp := rawRequest(t, addr, "host room\n")
	require.Equal(t, serp.RespOK, resp)
	_, err := conn.Write([]byte("early"))
	require.NoError(t, err)

	joiner, err := serp.Join(context.Background(), addr, "room")
	require.NoError(t, err)
	defer joiner.Close()

	resp, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, serp.RespConnected, resp)

	buf := make([]byte, len("early"))
	require.NoError(t, joiner.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(joiner, buf)
	require.NoError(t, err)
	assert.Equal(t, "early", string(buf))
}

func TestShutdownDropsWaitingHost(t *testing.T) {
	srv, err := NewServer(Config{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	res := hostAsync(context.Background(), srv.Addr().String(), "room")
	require.Eventually(t, func() bool { return srv.Rooms() == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-served, ErrServerClosed)

	h := <-res
	assert.True(t, errors.Is(h.err, serp.ErrConnectionBroke) || errors.Is(h.err, serp.ErrConnection))
	assert.Zero(t, srv.Rooms())
}

func TestMaxConns(t *testing.T) {
	srv := startServer(t, Config{MaxConns: 1})
	addr := srv.Addr().String()

	old := serp.AckTimeout
	serp.AckTimeout = 200 * time.Millisecond
	defer func() { serp.AckTimeout = old }()

	// the only slot is taken by a waiting host
	ctx, cancel := context.WithCancel(context.Background())
	res := hostAsync(ctx, addr, "room")
	require.Eventually(t, func() bool { return srv.Rooms() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := serp.Join(context.Background(), addr, "room")
	assert.ErrorIs(t, err, serp.ErrNoAck)

	cancel()
	<-res
}

func TestMaxConnsDepartedHosts(t *testing.T) {
	srv := startServer(t, Config{MaxConns: 2, SweepInterval: 20 * time.Millisecond})
	addr := srv.Addr().String()

	// both slots go to hosts that leave while waiting
	for _, id := range []string{"room1", "room2"} {
		conn, _, resp := rawRequest(t, addr, "host "+id+"\n")
		require.Equal(t, serp.RespOK, resp)
		require.NoError(t, conn.Close())
	}

	_, _, resp := rawRequest(t, addr, "host room3\n")
	assert.Equal(t, serp.RespOK, resp)
	assert.Eventually(t, func() bool { return srv.Rooms() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestShutdownWhileAccepting(t *testing.T) {
	srv, err := NewServer(Config{Address: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()
	addr := srv.Addr().String()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				conn, err := net.Dial("tcp", addr)
				if err != nil {
					continue
				}
				_, _ = conn.Write([]byte("conn nobody\n"))
				_ = conn.Close()
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
	assert.ErrorIs(t, <-served, ErrServerClosed)

	close(stop)
	wg.Wait()
}
