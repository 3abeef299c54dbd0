package acconnect

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testUserJSON   = `{"userID":"user-42","accessToken":"access-xyz"}`
	testCiphertext = "n286KF++MfuypEb7fx2OIIFJ5YxWB7qsoZGcOZb0yOEblaOsaaT6r2W6cEO0FEWk"
	testSessionID  = "session-7"
	testConnToken  = "conn-token/+="
)

// fakeCloud is an httptest server speaking just enough of the service.
type fakeCloud struct {
	t      *testing.T
	server *httptest.Server

	mu              sync.Mutex
	loginForm       map[string][]string
	tokenRequests   int
	subscription    subscriptionRequest
	subscriptionRaw string
	startCalls      int
	pingCalls       int
	conn            *websocket.Conn
	connected       chan struct{}
	frames          chan []byte

	setCookie     bool
	homeHTML      string
	negotiateCode int
	snapshot      string
	pingStatus    int
	tokenBody     string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()
	f := &fakeCloud{
		t:             t,
		connected:     make(chan struct{}, 1),
		frames:        make(chan []byte, 16),
		setCookie:     true,
		homeHTML:      homePage(testCiphertext, testSessionID),
		negotiateCode: http.StatusOK,
		pingStatus:    http.StatusOK,
		tokenBody:     `{"access_token":"bearer-1","token_type":"bearer","expires_in":3600}`,
		snapshot: `{"success":true,"error":null,"data":[
			{"macAddress":"aa:bb:cc:00:00:01","deviceName":"Living","applianceId":17,"firmwareVersion":"1.2.3","deviceType":"split",
			 "lastAction":{"power":"off","mode":"cool","fanspeed":"auto","temp":"72"},"lastEnvironment":{"roomTemperature":74}},
			{"macAddress":"AA:BB:CC:00:00:02","deviceName":"Bedroom","applianceId":"18","firmwareVersion":"1.2.3","deviceType":"split",
			 "lastAction":{"power":"on","mode":"heat","fanspeed":"low","temp":68},"lastEnvironment":{"roomTemperature":"66.5"}},
			{"macAddress":"AA:BB:CC:00:00:99","deviceName":"Office","applianceId":"19","firmwareVersion":"1.0.0","deviceType":"split",
			 "lastAction":{"power":"off","mode":"dry","fanspeed":"high","temp":"70"},"lastEnvironment":{}}
		]}`,
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.loginForm = r.PostForm
		setCookie := f.setCookie
		f.mu.Unlock()
		if setCookie {
			http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc", Path: "/", HttpOnly: true})
			http.SetCookie(w, &http.Cookie{Name: ".ASPXAUTH", Value: "def", Path: "/", Secure: true})
		}
		http.Redirect(w, r, "/home/index", http.StatusFound)
	})
	mux.HandleFunc("/home/index", func(w http.ResponseWriter, r *http.Request) {
		f.requireCookies(r)
		f.mu.Lock()
		page := f.homeHTML
		f.mu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, page)
	})
	mux.HandleFunc("/cAcc", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostForm.Get("grant_type"))
		require.Equal(t, "user-42", r.PostForm.Get("username"))
		require.Equal(t, "-", r.PostForm.Get("password"))
		f.mu.Lock()
		f.tokenRequests++
		body := f.tokenBody
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/api/device/initsubscription", func(w http.ResponseWriter, r *http.Request) {
		f.requireCookies(r)
		require.Equal(t, "Bearer bearer-1", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.subscriptionRaw = string(raw)
		require.NoError(t, json.Unmarshal(raw, &f.subscription))
		snapshot := f.snapshot
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, snapshot)
	})
	mux.HandleFunc("/signalr/negotiate", func(w http.ResponseWriter, r *http.Request) {
		f.requireCookies(r)
		require.Equal(t, "1.5", r.URL.Query().Get("clientProtocol"))
		require.Equal(t, connectionDataValue, r.URL.Query().Get("connectionData"))
		f.mu.Lock()
		code := f.negotiateCode
		f.mu.Unlock()
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"Url":"/signalr","ConnectionToken":%q,"ConnectionId":"conn-1","KeepAliveTimeout":20.0,"DisconnectTimeout":30.0,"ConnectionTimeout":110.0,"TryWebSockets":true,"ProtocolVersion":"1.5","TransportConnectTimeout":5.0,"LongPollDelay":0.0}`, testConnToken)
	})
	mux.HandleFunc("/signalr/connect", func(w http.ResponseWriter, r *http.Request) {
		f.requireCookies(r)
		require.Equal(t, "webSockets", r.URL.Query().Get("transport"))
		require.Equal(t, testConnToken, r.URL.Query().Get("connectionToken"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"C":"d-1","S":1,"M":[]}`))
		f.connected <- struct{}{}
		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				f.frames <- data
			}
		}()
	})
	mux.HandleFunc("/signalr/start", func(w http.ResponseWriter, r *http.Request) {
		f.requireCookies(r)
		require.Equal(t, testConnToken, r.URL.Query().Get("connectionToken"))
		f.mu.Lock()
		f.startCalls++
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"Response":"started"}`)
	})
	mux.HandleFunc("/signalr/ping", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.pingCalls++
		status := f.pingStatus
		f.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"Response":"pong"}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCloud) requireCookies(r *http.Request) {
	require.Equal(f.t, "ASP.NET_SessionId=abc; .ASPXAUTH=def", r.Header.Get("Cookie"))
}

func (f *fakeCloud) config() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = f.server.URL
	cfg.ClientID = "client-1"
	cfg.PingInterval = time.Hour
	return cfg
}

// push writes a frame from the server side of the websocket.
func (f *fakeCloud) push(frame string) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	require.NotNil(f.t, conn)
	require.NoError(f.t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func (f *fakeCloud) dropConnection() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	require.NotNil(f.t, conn)
	_ = conn.Close()
}

func (f *fakeCloud) nextFrame() []byte {
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(2 * time.Second):
		f.t.Fatal("timed out waiting for command frame")
		return nil
	}
}

func homePage(encrypted, sessionID string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>Home</title></head>
<body>
<form id="main">
<input type="hidden" id="EncryptedUserInfo" value="%s" />
<input type="hidden" id="SessionID" value="%s" />
<input type="text" id="Search" value="" />
</form>
</body></html>`, encrypted, sessionID)
}
