package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RPCError is an error the node itself reported, as opposed to a transport
// failure reaching it.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

type NodeClient struct {
	baseURL string
	client  *http.Client
}

func NewNodeClient(baseURL string) *NodeClient {
	return &NodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *NodeClient) BlockCount(ctx context.Context) (int64, error) {
	var height int64
	if err := c.call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *NodeClient) Balance(ctx context.Context) (decimal.Decimal, error) {
	var raw json.Number
	if err := c.call(ctx, "getbalance", nil, &raw); err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(raw.String())
}

func (c *NodeClient) SendToAddress(ctx context.Context, address string, amount decimal.Decimal) (string, error) {
	// The amount goes over the wire as a raw number literal so the node
	// sees the exact decimal value.
	params := []any{address, json.RawMessage(amount.String())}
	var txid string
	if err := c.call(ctx, "sendtoaddress", params, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

func (c *NodeClient) call(ctx context.Context, method string, params []any, out any) error {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "1.0",
		"id":      "nexamarket",
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("node http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return err
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out != nil && len(envelope.Result) > 0 {
		dec := json.NewDecoder(bytes.NewReader(envelope.Result))
		dec.UseNumber()
		return dec.Decode(out)
	}
	return nil
}
