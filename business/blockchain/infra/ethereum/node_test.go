package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// mockNode is a websocket JSON-RPC node that acknowledges eth_subscribe and
// then hands the connection to script.
func mockNode(t *testing.T, ack func(id json.RawMessage) string, script func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()

	if ack == nil {
		ack = okAck
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("websocket accept error: %v", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []string        `json:"params"`
		}
		if err := json.Unmarshal(data, &req); err != nil || req.Method != "eth_subscribe" {
			t.Errorf("unexpected request: %s", data)
			return
		}

		if reply := ack(req.ID); reply != "" {
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}

		if script != nil {
			script(ctx, conn)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func okAck(id json.RawMessage) string {
	return `{"jsonrpc":"2.0","id":` + string(id) + `,"result":"0xsub"}`
}

func nodeURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func pushHead(ctx context.Context, conn *websocket.Conn, result string) error {
	msg := `{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":` + result + `}}`
	return conn.Write(ctx, websocket.MessageText, []byte(msg))
}

// hold keeps the server side open without writing until the client leaves.
func hold(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

const sampleHead = `{"number":"0x10","timestamp":"0x5f5e100","gasUsed":"0x4c4b40","gasLimit":"0x989680","miner":"0xabc"}`
