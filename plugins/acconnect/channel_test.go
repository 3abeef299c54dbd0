package acconnect

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeepAlivePingFailureKeepsChannelOpen(t *testing.T) {
	f := newFakeCloud(t)
	f.pingStatus = http.StatusInternalServerError

	cfg := f.config()
	cfg.PingInterval = 20 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	got := make(chan error, 8)
	client.OnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	require.NoError(t, client.Connect(context.Background(), "jane", "pw", "10.0.0.5"))
	<-f.connected

	select {
	case err := <-got:
		assert.True(t, errors.Is(err, ErrTransport))
		assert.Contains(t, err.Error(), "ping")
	case <-time.After(2 * time.Second):
		t.Fatal("ping failure not reported")
	}
	assert.Equal(t, StateOpen, client.State())

	require.NoError(t, client.Close())
	time.Sleep(50 * time.Millisecond)
	f.mu.Lock()
	calls := f.pingCalls
	f.mu.Unlock()

	time.Sleep(150 * time.Millisecond)
	f.mu.Lock()
	assert.Equal(t, calls, f.pingCalls, "keep-alive must stop with the channel")
	f.mu.Unlock()
}

func TestChannelSendWhenNotOpen(t *testing.T) {
	ch := newChannel(channelConfig{writeTimeout: time.Second})
	err := ch.Send(context.Background(), []byte(`{}`))
	assert.True(t, errors.Is(err, ErrSend))
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestChannelCloseBeforeOpen(t *testing.T) {
	ch := newChannel(channelConfig{})
	require.NoError(t, ch.Close())
	assert.Equal(t, StateClosed, ch.State())
	select {
	case <-ch.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.Error(t, ch.Open(context.Background()))
}

func TestChannelConnectURL(t *testing.T) {
	ch := newChannel(channelConfig{
		baseURL: "https://cloud.example.com",
		socket:  SocketInfo{URL: "/signalr", ConnectionToken: "a/b+c", ProtocolVersion: "1.5"},
	})
	raw, err := ch.connectURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "wss://cloud.example.com/signalr/connect?"), raw)
	assert.Contains(t, raw, "transport=webSockets")
	assert.Contains(t, raw, "connectionToken=a%2Fb%2Bc")
	assert.Contains(t, raw, "tid=")

	ch.cfg.baseURL = "http://localhost:8080"
	raw, err = ch.connectURL()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "ws://localhost:8080/signalr/connect?"), raw)

	ch.cfg.baseURL = "ftp://nope"
	_, err = ch.connectURL()
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "errored", StateErrored.String())
	assert.Equal(t, "unknown", State(42).String())
}
