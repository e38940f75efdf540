package mt5

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the MT5 bridge running next to the terminal. The bridge
// exposes the terminal's position/order API as plain JSON over localhost.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError captures structured error info returned by the bridge. The bridge
// forwards the terminal retcode when an order is rejected.
type APIError struct {
	StatusCode int
	Retcode    int    `json:"retcode"`
	Message    string `json:"message"`
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "mt5 bridge error"
	}
	if e.Retcode != 0 || e.Message != "" {
		return fmt.Sprintf("mt5 bridge error %d (retcode=%d): %s", e.StatusCode, e.Retcode, e.Message)
	}
	return fmt.Sprintf("mt5 bridge error %d: %s", e.StatusCode, e.Body)
}

func parseAPIError(statusCode int, body []byte) error {
	var parsed struct {
		Retcode int    `json:"retcode"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Retcode != 0 || parsed.Message != "") {
		return &APIError{StatusCode: statusCode, Retcode: parsed.Retcode, Message: parsed.Message, Body: string(body)}
	}
	return &APIError{StatusCode: statusCode, Body: string(body)}
}

// NewClient creates a client for the bridge at baseURL
// (typically http://127.0.0.1:8001).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

func (c *Client) post(path string, payload, out interface{}) error {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Positions returns every open position in the terminal.
func (c *Client) Positions() ([]Position, error) {
	var positions []Position
	if err := c.get("/positions", &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// PositionsBySymbol returns the open positions for one symbol.
func (c *Client) PositionsBySymbol(symbol string) ([]Position, error) {
	var positions []Position
	path := "/positions?symbol=" + url.QueryEscape(symbol)
	if err := c.get(path, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// SymbolInfo returns the symbol's properties, or an error if the symbol is
// unknown to the terminal.
func (c *Client) SymbolInfo(symbol string) (*SymbolInfo, error) {
	var info SymbolInfo
	if err := c.get("/symbols/"+url.PathEscape(symbol), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SelectSymbol makes the symbol visible in Market Watch so it can be traded.
func (c *Client) SelectSymbol(symbol string) error {
	return c.post("/symbols/"+url.PathEscape(symbol)+"/select", nil, nil)
}

// Tick returns the latest quote for the symbol.
func (c *Client) Tick(symbol string) (*Tick, error) {
	var tick Tick
	if err := c.get("/ticks/"+url.PathEscape(symbol), &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

// OrderSend submits a trade request to the terminal. A non-nil result with
// Retcode != TradeRetcodeDone means the terminal rejected the request.
func (c *Client) OrderSend(req *TradeRequest) (*OrderResult, error) {
	var result OrderResult
	if err := c.post("/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
