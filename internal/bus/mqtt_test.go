package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload string
}

// fakeClient implements the publishing half of mqtt.Client. Unused methods
// panic through the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	token        func() mqtt.Token
	published    []published
	connected    bool
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.(string)})
	return c.token()
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
	c.connected = false
}

func TestMQTT_PublishCommand(t *testing.T) {
	client := &fakeClient{token: func() mqtt.Token { return completedToken(nil) }}
	b := newMQTTWithClient(client, MQTTConfig{CommandPrefix: DefaultCommandPrefix, QoS: 1})

	require.NoError(t, b.PublishCommand(context.Background(), CmdInitBugs, `{"numOfBugs":1}`))

	require.Len(t, client.published, 1)
	require.Equal(t, published{topic: "cmd/visual_app/init_bugs", qos: 1, payload: `{"numOfBugs":1}`}, client.published[0])
}

func TestMQTT_PublishError(t *testing.T) {
	client := &fakeClient{token: func() mqtt.Token { return completedToken(errors.New("not connected")) }}
	b := newMQTTWithClient(client, MQTTConfig{})

	err := b.PublishEvent(context.Background(), "event/command/reward", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not connected")
}

func TestMQTT_PublishTimeout(t *testing.T) {
	client := &fakeClient{token: func() mqtt.Token { return pendingToken() }}
	b := newMQTTWithClient(client, MQTTConfig{PublishTimeout: 20 * time.Millisecond})

	err := b.PublishEvent(context.Background(), "event/log/experiment", "hello")
	require.ErrorIs(t, err, ErrPublishTimeout)
}

func TestMQTT_PublishContextCancelled(t *testing.T) {
	client := &fakeClient{token: func() mqtt.Token { return pendingToken() }}
	b := newMQTTWithClient(client, MQTTConfig{PublishTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.PublishEvent(ctx, "event/log/experiment", "hello")
	require.ErrorIs(t, err, context.Canceled)
}

func TestMQTT_Close(t *testing.T) {
	client := &fakeClient{connected: true}
	b := newMQTTWithClient(client, MQTTConfig{})

	require.NoError(t, b.Close())
	require.True(t, client.disconnected)

	client.disconnected = false
	require.NoError(t, b.Close())
	require.False(t, client.disconnected, "second close is a no-op")
}
