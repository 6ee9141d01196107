package chat

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/sharechat/internal/chat/catalog"
	"github.com/wtask/sharechat/internal/chat/history"
	"github.com/wtask/sharechat/internal/logger"
)

const (
	ioTimeout     = 3 * time.Second
	welcomeFooter = "----------------------------------------"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "ERROR", "text", false)
	os.Exit(m.Run())
}

type testServer struct {
	*Server
	addr   string
	served chan error
}

func startServer(test *testing.T, options ...ServerOption) *testServer {
	test.Helper()
	files, err := catalog.New(test.TempDir())
	require.NoError(test, err)
	srv, err := NewServer(DefaultBroker(nil), files, options...)
	require.NoError(test, err)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)

	ts := &testServer{Server: srv, addr: l.Addr().String(), served: make(chan error, 1)}
	go func() {
		ts.served <- srv.Serve(l)
	}()
	test.Cleanup(func() {
		srv.Shutdown(time.Second)
	})
	return ts
}

// client - line-mode peer of the chat server.
type client struct {
	test *testing.T
	conn *net.TCPConn
	r    *bufio.Reader
}

func dial(test *testing.T, addr string) *client {
	test.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(test, err)
	test.Cleanup(func() { conn.Close() })
	return &client{test: test, conn: conn.(*net.TCPConn), r: bufio.NewReader(conn)}
}

// join - dials server, sends name and consumes welcome text.
func join(test *testing.T, addr, name string) *client {
	test.Helper()
	c := dial(test, addr)
	c.expect("Enter your name:")
	c.send(name)
	c.await(welcomeFooter)
	return c
}

func (c *client) send(line string) {
	c.test.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.test, err)
}

func (c *client) write(p []byte) {
	c.test.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	_, err := c.conn.Write(p)
	require.NoError(c.test, err)
}

func (c *client) line() string {
	c.test.Helper()
	c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	line, err := c.r.ReadString('\n')
	require.NoError(c.test, err, "partial line %q", line)
	return strings.TrimSuffix(line, "\n")
}

func (c *client) expect(want string) {
	c.test.Helper()
	assert.Equal(c.test, want, c.line())
}

// await - skips lines until the wanted one, returns skipped lines.
func (c *client) await(want string) []string {
	c.test.Helper()
	skipped := []string{}
	for {
		line := c.line()
		if line == want {
			return skipped
		}
		skipped = append(skipped, line)
	}
}

// expectEOF - server closed the connection.
func (c *client) expectEOF() {
	c.test.Helper()
	c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
	rest, err := io.ReadAll(c.r)
	require.NoError(c.test, err)
	assert.Empty(c.test, string(rest))
}

func partialUploads(test *testing.T, dir string) []string {
	test.Helper()
	parts, err := filepath.Glob(filepath.Join(dir, ".upload-*.part"))
	require.NoError(test, err)
	return parts
}

func TestServer_UsersListedInJoinOrder(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	join(test, srv.addr, "bob")
	join(test, srv.addr, "carol")
	alice.expect("* bob joined the chat *")
	alice.expect("* carol joined the chat *")

	alice.send("/users")
	alice.expect("[USERS] Online users:")
	alice.expect("  1. alice")
	alice.expect("  2. bob")
	alice.expect("  3. carol")
}

func TestServer_ConcurrentJoins(test *testing.T) {
	srv := startServer(test)
	const n = 8
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			join(test, srv.addr, fmt.Sprintf("user%d", i))
		}(i)
	}
	wg.Wait()

	names := []string{}
	for _, u := range srv.Users() {
		names = append(names, u.Name)
	}
	want := []string{}
	for i := 0; i < n; i++ {
		want = append(want, fmt.Sprintf("user%d", i))
	}
	assert.ElementsMatch(test, want, names)

	observer := join(test, srv.addr, "observer")
	observer.send("/users")
	observer.expect("[USERS] Online users:")
	listed := []string{}
	for i := 0; i <= n; i++ {
		listed = append(listed, observer.line())
	}
	for _, name := range want {
		assert.Contains(test, strings.Join(listed, "\n"), ". "+name)
	}
	assert.Equal(test, fmt.Sprintf("  %d. observer", n+1), listed[n])
}

func TestServer_DefaultName(test *testing.T) {
	srv := startServer(test)
	c := dial(test, srv.addr)
	c.expect("Enter your name:")
	c.send("   ")
	greeting := c.line()
	assert.Equal(test, fmt.Sprintf("Welcome to the chat, User_%s!", c.conn.LocalAddr()), greeting)
}

func TestServer_BroadcastExcludesSender(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	carol := join(test, srv.addr, "carol")
	alice.expect("* bob joined the chat *")
	alice.expect("* carol joined the chat *")
	bob.expect("* carol joined the chat *")

	alice.send("hello\tall")
	assert.Regexp(test, `^\[\d\d:\d\d:\d\d\] alice: hello all$`, bob.line())
	assert.Regexp(test, `^\[\d\d:\d\d:\d\d\] alice: hello all$`, carol.line())

	// per-writer order: own frame would be queued before this one
	bob.send("second")
	assert.Regexp(test, `^\[\d\d:\d\d:\d\d\] bob: second$`, alice.line())
	assert.Regexp(test, `^\[\d\d:\d\d:\d\d\] bob: second$`, carol.line())
}

func TestServer_JoinAndLeaveNoticesOnce(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	alice.expect("* bob joined the chat *")

	bob.send("/quit")
	bob.expect("[BYE] Goodbye!")
	bob.expectEOF()
	alice.expect("* bob left the chat *")

	join(test, srv.addr, "carol")
	alice.expect("* carol joined the chat *")

	alice.send("/users")
	alice.expect("[USERS] Online users:")
	alice.expect("  1. alice")
	alice.expect("  2. carol")
}

func TestServer_DisconnectBroadcastsLeave(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	alice.expect("* bob joined the chat *")

	bob.conn.Close()
	alice.expect("* bob left the chat *")
	assert.Eventually(test, func() bool { return len(srv.Users()) == 1 }, ioTimeout, 10*time.Millisecond)
}

func TestServer_HistoryGreets(test *testing.T) {
	h, err := history.NewStack(10)
	require.NoError(test, err)
	srv := startServer(test, WithMessageHistory(h, 2))
	alice := join(test, srv.addr, "alice")
	for _, text := range []string{"one", "two", "three"} {
		alice.send(text)
	}
	require.Eventually(test, func() bool { return h.Len() == 3 }, ioTimeout, 10*time.Millisecond)

	bob := join(test, srv.addr, "bob")
	assert.Regexp(test, `alice: two$`, bob.line())
	assert.Regexp(test, `alice: three$`, bob.line())
}

func TestServer_Help(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	alice.send("/help")
	alice.expect("Commands:")
	skipped := alice.await(welcomeFooter)
	assert.Contains(test, strings.Join(skipped, "\n"), "/download")
}

func TestServer_LineTooLong(test *testing.T) {
	srv := startServer(test, WithMaxLineLength(16))
	alice := join(test, srv.addr, "alice")
	alice.send(strings.Repeat("x", 40))
	alice.expect("ERROR|line too long")

	alice.send("/users")
	alice.expect("[USERS] Online users:")
	alice.expect("  1. alice")
}

func TestServer_IdleTimeout(test *testing.T) {
	srv := startServer(test, WithIdleTimeout(300*time.Millisecond))
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	alice.expect("* bob joined the chat *")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		t := time.NewTicker(50 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				io.WriteString(alice.conn, "\n")
			case <-stop:
				return
			}
		}
	}()

	alice.expect("* bob timed out *")
	bob.expectEOF()
}

func TestServer_FilesEmpty(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	alice.send("/files")
	alice.expect("[FILES] No files available yet.")
}

func TestServer_Upload(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	alice.expect("* bob joined the chat *")

	alice.send("/upload")
	alice.send("a.txt|5")
	alice.expect("READY")
	alice.write([]byte("hello"))
	alice.expect("OK")

	bob.expect("[FILE] alice uploaded 'a.txt' (5 bytes)")

	alice.send("/files")
	alice.expect("[FILES] Available files:")
	assert.True(test, strings.HasPrefix(alice.line(), "  1. a.txt (5 bytes) - uploaded by alice at "))

	content, err := os.ReadFile(filepath.Join(srv.files.Dir(), "a.txt"))
	require.NoError(test, err)
	assert.Equal(test, "hello", string(content))
	assert.Empty(test, partialUploads(test, srv.files.Dir()))
}

func TestServer_UploadSameLine(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	alice.send("/upload empty.bin|0")
	alice.expect("READY")
	alice.expect("OK")

	e, ok := srv.files.Get("empty.bin")
	require.True(test, ok)
	assert.Equal(test, int64(0), e.Size)
}

func TestServer_UploadIncomplete(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	alice.expect("* bob joined the chat *")

	bob.send("/upload b.txt|5")
	bob.expect("READY")
	bob.write([]byte("hel"))
	require.NoError(test, bob.conn.CloseWrite())
	bob.expect("ERROR|incomplete (received 3/5 bytes)")

	alice.expect("* bob left the chat *")
	assert.Equal(test, 0, srv.files.Len())
	assert.Empty(test, partialUploads(test, srv.files.Dir()))
	_, err := os.Stat(filepath.Join(srv.files.Dir(), "b.txt"))
	assert.True(test, os.IsNotExist(err))
}

func TestServer_BroadcastsQueuedDuringUpload(test *testing.T) {
	srv := startServer(test, WithOutboxSize(16))
	alice := join(test, srv.addr, "alice")
	bob := join(test, srv.addr, "bob")
	alice.expect("* bob joined the chat *")

	alice.send("/upload a.txt|5")
	alice.expect("READY")

	const n = 300
	for i := 0; i < n; i++ {
		bob.send(fmt.Sprintf("msg %d", i))
	}
	// bob's lines are handled in order, so all of them were broadcast by now
	bob.send("/users")
	bob.expect("[USERS] Online users:")

	alice.write([]byte("hello"))
	alice.expect("OK")
	for i := 0; i < n; i++ {
		assert.Regexp(test, fmt.Sprintf(`^\[\d\d:\d\d:\d\d\] bob: msg %d$`, i), alice.line())
	}
	assert.Len(test, srv.Users(), 2)
}

func TestServer_UploadTimeout(test *testing.T) {
	srv := startServer(test, WithTransferEngine(newEngine(200*time.Millisecond)))
	alice := join(test, srv.addr, "alice")
	alice.send("/upload slow.txt|5")
	alice.expect("READY")
	alice.write([]byte("he"))
	alice.expect("ERROR|timeout")
	assert.Equal(test, 0, srv.files.Len())
	assert.Empty(test, partialUploads(test, srv.files.Dir()))

	// session is back to chat mode
	alice.send("/files")
	alice.expect("[FILES] No files available yet.")
}

func TestServer_UploadRejected(test *testing.T) {
	srv := startServer(test, WithMaxUploadSize(10))
	alice := join(test, srv.addr, "alice")

	cases := []struct {
		meta, reply string
	}{
		{"no-separator", "ERROR|invalid metadata"},
		{"a|b|5", "ERROR|invalid metadata"},
		{"a.txt|-1", "ERROR|invalid metadata"},
		{"a.txt|x", "ERROR|invalid metadata"},
		{"big.txt|11", "ERROR|file too large (max 10 bytes)"},
		{"../etc/passwd|1", "ERROR|invalid file name"},
		{"..|1", "ERROR|invalid file name"},
		{"|1", "ERROR|invalid file name"},
	}
	for _, c := range cases {
		alice.send("/upload")
		alice.send(c.meta)
		alice.expect(c.reply)
	}
	assert.Equal(test, 0, srv.files.Len())
	assert.Empty(test, partialUploads(test, srv.files.Dir()))
}

func TestServer_DownloadMissing(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	alice.send("/download")
	alice.send("nope.txt")
	alice.expect("ERROR|not found")
	alice.send("/download nope.txt")
	alice.expect("ERROR|not found")
}

func TestServer_DownloadExpectsReady(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	alice.send("/upload a.txt|5")
	alice.expect("READY")
	alice.write([]byte("hello"))
	alice.expect("OK")

	alice.send("/download a.txt")
	alice.expect("OK|5")
	alice.send("NOPE")
	alice.expect("ERROR|expected READY")
}

func TestServer_ConcurrentUploadsThenDownload(test *testing.T) {
	srv := startServer(test)
	files := map[string]string{"a.txt": "hello", "b.txt": "world"}
	uploaders := map[string]*client{
		"a.txt": join(test, srv.addr, "alice"),
		"b.txt": join(test, srv.addr, "bob"),
	}

	wg := sync.WaitGroup{}
	for name, c := range uploaders {
		wg.Add(1)
		go func(name string, c *client) {
			defer wg.Done()
			c.send(fmt.Sprintf("/upload %s|%d", name, len(files[name])))
			c.await("READY")
			c.write([]byte(files[name]))
			c.expect("OK")
		}(name, c)
	}
	wg.Wait()
	require.Equal(test, 2, srv.files.Len())

	carol := join(test, srv.addr, "carol")
	for name, content := range files {
		carol.send("/download " + name)
		carol.expect(fmt.Sprintf("OK|%d", len(content)))
		carol.send("READY")
		got := make([]byte, len(content))
		carol.conn.SetReadDeadline(time.Now().Add(ioTimeout))
		_, err := io.ReadFull(carol.r, got)
		require.NoError(test, err)
		assert.Equal(test, content, string(got))
	}

	// chat continues after raw payload
	carol.send("/users")
	carol.expect("[USERS] Online users:")
}

func TestServer_ConnectionLimit(test *testing.T) {
	srv := startServer(test, WithMaxConnections(1))
	join(test, srv.addr, "alice")

	c := dial(test, srv.addr)
	c.expect("ERROR|server is full")
	c.expectEOF()
	assert.Equal(test, 1, srv.ActiveConnections())
}

func TestServer_ShutdownAbortsUpload(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	alice.send("/upload c.txt|10")
	alice.expect("READY")
	alice.write([]byte("abc"))
	require.Eventually(test, func() bool {
		for _, s := range srv.Sessions() {
			if s.State == StateTransferring.String() {
				return true
			}
		}
		return false
	}, ioTimeout, 10*time.Millisecond)

	_, err := srv.Shutdown(2 * time.Second)
	require.NoError(test, err)

	alice.expect("ERROR|server shutting down")
	alice.expectEOF()
	assert.Equal(test, 0, srv.files.Len())
	assert.Empty(test, partialUploads(test, srv.files.Dir()))
	assert.Equal(test, 0, srv.ActiveConnections())

	select {
	case err := <-srv.served:
		assert.NoError(test, err)
	case <-time.After(ioTimeout):
		test.Fatal("Serve did not return after Shutdown")
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	assert.ErrorIs(test, srv.Serve(l), ErrServerClosed)
}

func TestServer_ShutdownReleasesIdleSessions(test *testing.T) {
	srv := startServer(test)
	alice := join(test, srv.addr, "alice")
	c := dial(test, srv.addr)
	c.expect("Enter your name:")

	elapsed, err := srv.Shutdown(2 * time.Second)
	require.NoError(test, err)
	assert.Less(test, elapsed, 2*time.Second)
	alice.expectEOF()
	c.expectEOF()
	assert.Empty(test, srv.Users())
}

func TestNewServer_ErrorCase(test *testing.T) {
	files, err := catalog.New(test.TempDir())
	require.NoError(test, err)

	_, err = NewServer(nil, files)
	assert.Error(test, err)
	_, err = NewServer(DefaultBroker(nil), nil)
	assert.Error(test, err)
	_, err = NewServer(DefaultBroker(nil), files, WithMaxLineLength(0))
	assert.Error(test, err)
	_, err = NewServer(DefaultBroker(nil), files, WithMessageHistory(nil, 1))
	assert.Error(test, err)
	_, err = NewServer(DefaultBroker(nil), files, WithIdleTimeout(-time.Second))
	assert.Error(test, err)
}
