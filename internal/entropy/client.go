package entropy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Client is a Provider backed by a remote oracle speaking the Routes protocol.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusNotFound:
		return ErrUnknownRequest
	case http.StatusConflict:
		return ErrAlreadyRevealed
	case http.StatusUnprocessableEntity:
		return ErrRevealMismatch
	case http.StatusPaymentRequired:
		return ErrFeeMismatch
	default:
		return fmt.Errorf("entropy %s %s: status %d", method, path, resp.StatusCode)
	}
}

func (c *Client) QuoteFee(ctx context.Context) (*big.Int, error) {
	var out feeResponse
	if err := c.do(ctx, http.MethodGet, "/fee", nil, &out); err != nil {
		return nil, err
	}
	fee, ok := new(big.Int).SetString(out.Fee, 10)
	if !ok {
		return nil, fmt.Errorf("entropy: invalid fee %q", out.Fee)
	}
	return fee, nil
}

func (c *Client) Request(ctx context.Context, commitment common.Hash, fee *big.Int) (uint64, error) {
	if fee == nil {
		return 0, ErrFeeMismatch
	}
	var out requestResponse
	body := requestBody{Commitment: commitment, Fee: fee.String()}
	if err := c.do(ctx, http.MethodPost, "/requests", body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *Client) Reveal(ctx context.Context, id uint64, userSeed, providerSeed common.Hash) (*big.Int, error) {
	var out revealResponse
	body := revealBody{UserSeed: userSeed, ProviderSeed: providerSeed}
	path := "/requests/" + strconv.FormatUint(id, 10) + "/reveal"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(out.Value, 10)
	if !ok {
		return nil, fmt.Errorf("entropy: invalid random value %q", out.Value)
	}
	return v, nil
}

// Status reports the remote request state; an unknown id reports "".
func (c *Client) Status(ctx context.Context, id uint64) (string, error) {
	var out statusResponse
	err := c.do(ctx, http.MethodGet, "/requests/"+strconv.FormatUint(id, 10), nil, &out)
	if errors.Is(err, ErrUnknownRequest) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return out.Status, nil
}
