package services

import (
	"context"
	"fmt"
	"net/url"

	"funding-service/internal/config"
	"funding-service/pkg/common"
)

// IdentityClient looks users up in the platform user directory. Orphan
// resolution uses it to map a customer email from a gateway payload to a
// local user id.
type IdentityClient struct {
	cfg config.IdentityConfig
}

func NewIdentityClient(cfg config.IdentityConfig) *IdentityClient {
	return &IdentityClient{cfg: cfg}
}

// FindUserByEmail returns the user id for an email, or (0, nil) when no
// user matches.
func (c *IdentityClient) FindUserByEmail(ctx context.Context, email string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqUrl := fmt.Sprintf("%s/api/v1/users/lookup?email=%s", c.cfg.BaseUrl, url.QueryEscape(email))
	resp, err := common.Get(ctx, reqUrl, nil)
	if err != nil {
		return 0, fmt.Errorf("identity lookup: %w", err)
	}

	respMap, ok := resp.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("identity lookup: unexpected response %T", resp)
	}
	if success, _ := respMap["success"].(bool); !success {
		return 0, nil
	}
	data, _ := respMap["data"].(map[string]interface{})
	idVal, ok := data["id"].(float64)
	if !ok {
		return 0, nil
	}
	return int(idVal), nil
}
