// Package credential manages OAuth2 bootstrap and refresh of the access
// token used to authorize speech requests. Persisting a Record to disk is
// done by internal/config.
package credential

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// validityMargin is the safety margin subtracted from expires_in so a
// refresh happens before the server actually rejects the token.
const validityMargin = 120 * time.Second

// Record mirrors the persistent "alexa" configuration section.
type Record struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string
	CreatedAt    int64 // epoch seconds
	ExpiresIn    int64 // seconds
}

// Valid reports whether AccessToken is non-empty and still within its
// validity window as of now, with a two-minute safety margin.
func (r *Record) Valid(now time.Time) bool {
	if r.AccessToken == "" || r.CreatedAt == 0 || r.ExpiresIn == 0 {
		return false
	}
	expiry := time.Unix(r.CreatedAt, 0).Add(time.Duration(r.ExpiresIn) * time.Second)
	return now.Before(expiry.Add(-validityMargin))
}

// Client talks to the provider's OAuth token endpoint.
type Client struct {
	config *oauth2.Config
}

// NewClient builds a credential Client for the given endpoint and app
// registration.
func NewClient(clientID, clientSecret, tokenURL string) *Client {
	return &Client{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: tokenURL,
			},
			RedirectURL: "https://localhost",
		},
	}
}

// Bootstrap exchanges a one-time authorization code for the first
// refresh/access token pair.
func (c *Client) Bootstrap(ctx context.Context, code string) (*Record, error) {
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("credential: bootstrap exchange: %w", err)
	}
	return recordFromToken(tok), nil
}

// Refresh obtains a new access token using the stored refresh token,
// using the stored refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Record, error) {
	src := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("credential: refresh: %w", err)
	}
	return recordFromToken(tok), nil
}

// AuthorizeURL builds the browser URL a user visits to authorize this
// device.
func (c *Client) AuthorizeURL(authURL, deviceTypeID, deviceSerial string) string {
	scopeData := fmt.Sprintf(`{"alexa:all":{"productID":"%s","productInstanceAttributes":{"deviceSerialNumber":"%s"}}}`,
		deviceTypeID, deviceSerial)
	v := url.Values{}
	v.Set("client_id", c.config.ClientID)
	v.Set("scope", "alexa:all")
	v.Set("scope_data", scopeData)
	v.Set("response_type", "code")
	v.Set("redirect_uri", c.config.RedirectURL)
	return authURL + "?" + v.Encode()
}

func recordFromToken(tok *oauth2.Token) *Record {
	expiresIn := int64(0)
	createdAt := time.Now().Unix()
	if !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return &Record{
		RefreshToken: tok.RefreshToken,
		AccessToken:  tok.AccessToken,
		CreatedAt:    createdAt,
		ExpiresIn:    expiresIn,
	}
}
