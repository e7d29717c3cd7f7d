package ethereum

import "encoding/json"

const subscribeRequestID = 1

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

func newHeadsSubscribeRequest() rpcRequest {
	return rpcRequest{
		JSONRPC: "2.0",
		ID:      subscribeRequestID,
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}
}

// rpcError is the error object of a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// subscribeAck is the response to eth_subscribe.
type subscribeAck struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// notification is an eth_subscription push message.
type notification struct {
	JSONRPC string              `json:"jsonrpc"`
	Method  string              `json:"method"`
	Params  *notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// headFields are the newHeads result fields the decoder reads. Pointers
// distinguish absent fields from empty ones.
type headFields struct {
	Number    *string `json:"number"`
	Timestamp *string `json:"timestamp"`
	GasUsed   *string `json:"gasUsed"`
	GasLimit  *string `json:"gasLimit"`
	Miner     *string `json:"miner"`
	Hash      string  `json:"hash"`
}

// wrapNotification rebuilds the eth_subscription envelope around a result
// delivered without it.
func wrapNotification(subscription string, result json.RawMessage) ([]byte, error) {
	return json.Marshal(notification{
		JSONRPC: "2.0",
		Method:  "eth_subscription",
		Params: &notificationParams{
			Subscription: subscription,
			Result:       result,
		},
	})
}
