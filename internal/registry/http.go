// http.go - Client for a whitelist registry service.

package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// HTTPClient reads eligibility state from a remote registry service.
type HTTPClient struct {
	http *resty.Client
}

// NewHTTPClient targets the registry service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
}

type rootResponse struct {
	Root common.Hash `json:"root"`
}

type eligibleResponse struct {
	Eligible bool `json:"eligible"`
}

// WhitelistRoot fetches the registry's current root.
func (c *HTTPClient) WhitelistRoot(ctx context.Context) (common.Hash, error) {
	var out rootResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/whitelist/root")
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch whitelist root: %w", err)
	}
	if resp.IsError() {
		return common.Hash{}, fmt.Errorf("fetch whitelist root: %s", resp.Status())
	}
	return out.Root, nil
}

// ParticipantEligible asks the registry about one participant.
func (c *HTTPClient) ParticipantEligible(ctx context.Context, participant common.Address) (bool, error) {
	return c.eligible(ctx, "/v1/whitelist/participants/{addr}", participant)
}

// AssetEligible asks the registry about one asset.
func (c *HTTPClient) AssetEligible(ctx context.Context, asset common.Address) (bool, error) {
	return c.eligible(ctx, "/v1/whitelist/assets/{addr}", asset)
}

func (c *HTTPClient) eligible(ctx context.Context, path string, member common.Address) (bool, error) {
	var out eligibleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("addr", member.Hex()).
		Get(path)
	if err != nil {
		return false, fmt.Errorf("check eligibility of %s: %w", member, err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("check eligibility of %s: %s", member, resp.Status())
	}
	return out.Eligible, nil
}
