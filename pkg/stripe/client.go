package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/ordersettle/pkg/config"
	"github.com/angelmondragon/ordersettle/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes each environment accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client holds one gateway account: the key-scoped session API and the
// webhook signing secret. The package-level stripe.Key is never set.
type Client struct {
	environment   string
	signingSecret string
	createSession sessionCreator
	getSession    sessionGetter
	expireSession sessionExpirer
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	}
	if err := checkKey(env, apiKey); err != nil {
		return nil, err
	}

	sessions := &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey}
	logg.Info(logg.WithField(ctx, "stripe_env", env), "stripe.client.ready")
	return &Client{
		environment:   env,
		signingSecret: secret,
		createSession: sessions.New,
		getSession:    sessions.Get,
		expireSession: sessions.Expire,
	}, nil
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret is the endpoint secret used to verify webhook signatures.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// checkKey stops a live key from being used in test and the other way round.
func checkKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return fmt.Errorf("stripe environment must be test or live, got %q", env)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s environment requires a key starting with %s", env, strings.Join(prefixes, " or "))
}
