// Package ws types defines the JSON-RPC messages exchanged with an EVM node
// over a websocket.
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SubscriptionType is the first eth_subscribe parameter
type SubscriptionType string

const (
	// SubscriptionNewHeads fires once per new block
	SubscriptionNewHeads SubscriptionType = "newHeads"

	// SubscriptionLogs fires for every log matching a LogFilter
	SubscriptionLogs SubscriptionType = "logs"
)

// LogFilter restricts a logs subscription. Empty fields match everything.
type LogFilter struct {
	Address []common.Address `json:"address,omitempty"`
	Topics  [][]common.Hash  `json:"topics,omitempty"`
}

// Header is a newHeads notification, reduced to the fields callers read
type Header struct {
	Number     *hexutil.Big   `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Timestamp  hexutil.Uint64 `json:"timestamp"`
}

// Log is a logs notification
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        hexutil.Bytes  `json:"data"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
	BlockHash   common.Hash    `json:"blockHash"`
	TxHash      common.Hash    `json:"transactionHash"`
	LogIndex    hexutil.Uint   `json:"logIndex"`
	// Removed is set when the log was dropped by a reorg
	Removed bool `json:"removed"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func newRequest(id int64, method string, params ...any) rpcRequest {
	if params == nil {
		params = []any{}
	}
	return rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
}

// rpcMessage is either a response (ID set) or a subscription notification
// (Method set)
type rpcMessage struct {
	ID     *int64              `json:"id,omitempty"`
	Result json.RawMessage     `json:"result,omitempty"`
	Error  *RPCError           `json:"error,omitempty"`
	Method string              `json:"method,omitempty"`
	Params *notificationParams `json:"params,omitempty"`
}

type notificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// RPCError is the error object of a JSON-RPC response
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
