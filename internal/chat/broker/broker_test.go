package broker

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/sharechat/internal/metrics"
)

type link struct{ clientConn, brokerConn net.Conn }

func connect() link {
	c, s := net.Pipe()
	return link{c, s}
}

// failingPeer - peer which refuses every delivery.
type failingPeer struct{}

func (failingPeer) Push(string) error { return ErrOutboxFull }

// recordingPeer - peer which remembers delivered messages.
type recordingPeer struct {
	mu       sync.Mutex
	messages []string
}

func (p *recordingPeer) Push(m string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
	return nil
}

func (p *recordingPeer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}

func Test_New(test *testing.T) {
	r := NewRegistry()
	b, err := New(WithRegistry(r), WithMetrics(nil))
	require.NoError(test, err)
	assert.Same(test, r, b.Registry())

	_, err = New(WithRegistry(nil))
	assert.Error(test, err)

	b, err = New()
	require.NoError(test, err)
	assert.NotNil(test, b.Registry())
}

func TestBroker_Join_ErrorCase(test *testing.T) {
	b, err := New()
	require.NoError(test, err)

	_, err = b.Join("alice", "pipe", nil)
	assert.Error(test, err)

	id, err := b.Join("alice", "pipe", &recordingPeer{})
	require.NoError(test, err)
	assert.NotEmpty(test, id)

	b.Quit()
	_, err = b.Join("bob", "pipe", &recordingPeer{})
	assert.ErrorIs(test, err, ErrUnderStopCondition)
}

func TestBroker_Part(test *testing.T) {
	b, _ := New()
	id, _ := b.Join("alice", "pipe", &recordingPeer{})

	e, ok := b.Part(id)
	require.True(test, ok)
	assert.Equal(test, "alice", e.Name)

	_, ok = b.Part(id)
	assert.False(test, ok, "session must part only once")
	assert.Empty(test, b.Members())
}

func TestBroker_SendMessage(test *testing.T) {
	b, _ := New()
	peer := &recordingPeer{}
	id, _ := b.Join("alice", "pipe", peer)

	require.NoError(test, b.SendMessage(id, "message-1\n"))
	assert.ErrorIs(test, b.SendMessage(NewID(), "lost\n"), ErrUnknownSession)
	assert.Equal(test, []string{"message-1\n"}, peer.received())
}

func TestBroker_Broadcast(test *testing.T) {
	b, _ := New()
	peers := make([]*recordingPeer, 3)
	ids := make([]ID, 3)
	for i := range peers {
		peers[i] = &recordingPeer{}
		ids[i], _ = b.Join(fmt.Sprintf("user-%d", i), "pipe", peers[i])
	}

	delivered := b.Broadcast("hello\n", ids[0])
	assert.Equal(test, 2, delivered)
	assert.Empty(test, peers[0].received(), "sender never receives own broadcast")
	assert.Equal(test, []string{"hello\n"}, peers[1].received())
	assert.Equal(test, []string{"hello\n"}, peers[2].received())

	delivered = b.Broadcast("all\n", "")
	assert.Equal(test, 3, delivered)
	assert.Equal(test, []string{"all\n"}, peers[0].received())
}

func TestBroker_Broadcast_ToleratesFailures(test *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b, _ := New(WithMetrics(m))

	b.Join("broken", "pipe", failingPeer{})
	good := &recordingPeer{}
	b.Join("good", "pipe", good)

	assert.Equal(test, 1, b.Broadcast("hi\n", ""))
	assert.Equal(test, []string{"hi\n"}, good.received())
	assert.Equal(test, 1.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Equal(test, 1.0, testutil.ToFloat64(m.Broadcasts))
}

func TestBroker_Broadcast_OverPipes(test *testing.T) {
	network := []link{connect(), connect(), connect()}
	b, _ := New()

	ids := make([]ID, len(network))
	for i, l := range network {
		out := NewOutbox(l.brokerConn, 8, time.Second)
		defer out.Close()
		ids[i], _ = b.Join(fmt.Sprintf("net-client-%d", i+1), "pipe", out)
	}

	received := make([]string, len(network))
	wg := sync.WaitGroup{}
	for i, l := range network[1:] {
		wg.Add(1)
		go func(i int, conn net.Conn) {
			defer wg.Done()
			conn.SetReadDeadline(time.Now().Add(time.Second))
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err == nil {
				received[i] = line
			}
		}(i+1, l.clientConn)
	}

	b.Broadcast("message-1\n", ids[0])
	wg.Wait()

	assert.Equal(test, "", received[0])
	assert.Equal(test, "message-1\n", received[1])
	assert.Equal(test, "message-1\n", received[2])

	// sender must not have anything pending
	network[0].clientConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, err := network[0].clientConn.Read(make([]byte, 1))
	var netErr net.Error
	require.True(test, errors.As(err, &netErr))
	assert.True(test, netErr.Timeout())
}
