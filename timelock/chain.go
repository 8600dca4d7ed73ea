package timelock

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/echolock/echolock/internal/common"
)

// Utxo is an unspent output at a watched address.
type Utxo struct {
	TxID   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount int64  `json:"amount_sat"`
}

// Chain is the two-call port from spec.md §6: "get_tip_height() → u64
// and get_address_utxos(addr) → [Utxo]. Implementations may back
// these with any chain API that returns equivalent structured data."
type Chain interface {
	GetTipHeight(ctx context.Context) (uint64, error)
	GetAddressUTXOs(ctx context.Context, address string) ([]Utxo, error)
}

// HTTPChain backs Chain with a thin client against CHAIN_API_URL. No
// chain SDK in the pack targets a generic height-locking UTXO chain
// closely enough to prefer it over a typed HTTP client (see
// DESIGN.md).
type HTTPChain struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPChain(baseURL string) *HTTPChain {
	return &HTTPChain{BaseURL: baseURL, Client: http.DefaultClient}
}

func (c *HTTPChain) GetTipHeight(ctx context.Context) (uint64, error) {
	var out struct {
		Height uint64 `json:"height"`
	}
	if err := c.getJSON(ctx, "/tip-height", &out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

func (c *HTTPChain) GetAddressUTXOs(ctx context.Context, address string) ([]Utxo, error) {
	var out []Utxo
	if err := c.getJSON(ctx, "/address/"+address+"/utxos", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPChain) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return common.NewError(common.KindChainUnreachable, "building chain API request", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return common.NewError(common.KindChainUnreachable, "calling chain API", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return common.NewError(common.KindChainUnreachable, "chain API returned status "+strconv.Itoa(resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return common.NewError(common.KindChainUnreachable, "decoding chain API response", err)
	}
	return nil
}
