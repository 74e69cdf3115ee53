package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeNode serves a websocket that hands every decoded request to handle
func newFakeNode(t *testing.T, handle func(conn *websocket.Conn, req rpcRequest)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req rpcRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			handle(conn, req)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func write(conn *websocket.Conn, msg string) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func notification(sub, result string) string {
	return `{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"` + sub + `","result":` + result + `}}`
}

func TestClient_Heads(t *testing.T) {
	params := make(chan []any, 1)
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		if req.Method != "eth_subscribe" {
			return
		}
		params <- req.Params
		write(conn, notification("0xother", `{"number":"0x1"}`))
		write(conn, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
		write(conn, "connected")
		write(conn, notification("0xother", `{"number":"0x2"}`))
		write(conn, notification("0xabc", `{"number":"0x10","hash":"0x00000000000000000000000000000000000000000000000000000000000000ff","timestamp":"0x5"}`))
	})

	client := NewHeadsClient(url, nil)
	t.Cleanup(func() { client.Close() })

	head, err := client.Read()
	require.NoError(t, err)
	assert.Equal(t, []any{"newHeads"}, <-params)
	assert.Equal(t, "0xabc", client.SubscriptionID())
	assert.EqualValues(t, 16, head.Number.ToInt().Int64())
	assert.Equal(t, common.HexToHash("0xff"), head.Hash)
	assert.EqualValues(t, 5, head.Timestamp)
}

func TestClient_VaultLogs(t *testing.T) {
	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	topic := "0x2222222222222222222222222222222222222222222222222222222222222222"

	filters := make(chan map[string]any, 1)
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		if req.Method != "eth_subscribe" || len(req.Params) != 2 {
			return
		}
		f, _ := req.Params[1].(map[string]any)
		filters <- f
		write(conn, `{"jsonrpc":"2.0","id":1,"result":"0xlogs"}`)
		write(conn, notification("0xlogs", `{
			"address":"`+vault.Hex()+`",
			"topics":["`+topic+`"],
			"data":"0x01",
			"blockNumber":"0x64",
			"transactionHash":"0x00000000000000000000000000000000000000000000000000000000000000aa",
			"logIndex":"0x3",
			"removed":true
		}`))
	})

	client := NewVaultLogsClient(url, nil, vault)
	t.Cleanup(func() { client.Close() })

	got, err := client.Read()
	require.NoError(t, err)

	filter := <-filters
	require.NotNil(t, filter)
	addrs, _ := filter["address"].([]any)
	require.Len(t, addrs, 1)
	assert.True(t, strings.EqualFold(vault.Hex(), addrs[0].(string)))
	_, hasTopics := filter["topics"]
	assert.False(t, hasTopics)

	assert.Equal(t, vault, got.Address)
	assert.Equal(t, []common.Hash{common.HexToHash(topic)}, got.Topics)
	assert.EqualValues(t, 100, got.BlockNumber)
	assert.EqualValues(t, 3, got.LogIndex)
	assert.Equal(t, []byte{1}, []byte(got.Data))
	assert.True(t, got.Removed)
}

func TestClient_SubscribeRejected(t *testing.T) {
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		write(conn, `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"notifications not supported"}}`)
	})

	client := NewHeadsClient(url, nil)
	_, err := client.Read()
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Empty(t, client.SubscriptionID())
}

func TestClient_CloseUnblocksRead(t *testing.T) {
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		if req.Method == "eth_subscribe" {
			write(conn, `{"jsonrpc":"2.0","id":1,"result":"0xabc"}`)
		}
	})

	client := NewHeadsClient(url, nil)
	done := make(chan error, 1)
	go func() {
		_, err := client.Read()
		done <- err
	}()

	require.Eventually(t, func() bool { return client.SubscriptionID() != "" }, time.Second, 10*time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
	assert.NoError(t, client.Close())
}

func TestRPCClient_MatchesResponsesByID(t *testing.T) {
	var (
		mu      sync.Mutex
		pending []rpcRequest
	)
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		mu.Lock()
		defer mu.Unlock()
		pending = append(pending, req)
		if len(pending) < 2 {
			return
		}
		for i := len(pending) - 1; i >= 0; i-- {
			r := pending[i]
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": r.ID, "result": r.Method})
		}
		pending = nil
	})

	client := NewRPCClient(url, nil)
	require.NoError(t, client.Start())
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, method := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, err := client.Call(ctx, method)
			if assert.NoError(t, err) {
				assert.JSONEq(t, `"`+method+`"`, string(raw))
			}
		}()
	}
	wg.Wait()
}

func TestRPCClient_BlockNumberAndErrors(t *testing.T) {
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		switch req.Method {
		case "eth_blockNumber":
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": "0x1b4"})
		case "hang":
		default:
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
		}
	})

	client := NewRPCClient(url, nil)
	require.NoError(t, client.Start())
	t.Cleanup(func() { client.Close() })

	n, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 436, n)

	_, err = client.Call(context.Background(), "eth_nope")
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "method not found", rpcErr.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Call(ctx, "hang")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRPCClient_CloseFailsPendingCalls(t *testing.T) {
	received := make(chan struct{}, 1)
	url := newFakeNode(t, func(conn *websocket.Conn, req rpcRequest) {
		received <- struct{}{}
	})

	client := NewRPCClient(url, nil)
	require.NoError(t, client.Start())

	done := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "hang")
		done <- err
	}()

	<-received
	require.NoError(t, client.Close())
	assert.ErrorIs(t, <-done, ErrClosed)

	_, err := client.Call(context.Background(), "again")
	assert.Error(t, err)
}
