package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// OIDCAuthenticator validates bearer tokens against an external identity
// provider. Credential issuance itself stays outside this service; only the
// hospital IdP mints tokens.
type OIDCAuthenticator struct {
	config *oauth2.Config
	issuer string
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret string) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile"},
	}

	return &OIDCAuthenticator{
		config: config,
		issuer: issuer,
	}, nil
}

// ValidateToken presents the bearer token to the provider's userinfo
// endpoint. The provider decides validity and expiry; the returned claims
// carry the role and patient assignment the same way local tokens do.
func (a *OIDCAuthenticator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("token empty")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, source)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.issuer+"/userinfo", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc userinfo request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oidc token rejected: %s", resp.Status)
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("oidc userinfo malformed: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("oidc userinfo missing subject")
	}
	if claims.UserID == uuid.Nil {
		if id, err := uuid.Parse(claims.Subject); err == nil {
			claims.UserID = id
		}
	}
	return &claims, nil
}
