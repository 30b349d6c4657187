package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// LoginConfig describes the OAuth endpoints and client identity needed to
// run an interactive authorization-code login.
type LoginConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
}

// Login runs a full loopback authorization-code flow: it binds a
// CallbackServer, builds the authorize URL (delivered via onAuthURL so the
// caller can open it in a browser or print it), waits for the redirect,
// and exchanges the code for Credentials.
func Login(ctx context.Context, cfg LoginConfig, onAuthURL func(url string)) (Credentials, error) {
	state := uuid.NewString()

	cb, err := NewCallbackServer(state)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: start callback server: %w", err)
	}
	defer cb.Stop()

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  "http://" + cb.Addr() + "/auth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	if onAuthURL != nil {
		onAuthURL(oc.AuthCodeURL(state))
	}

	code, ok := cb.WaitForCallback(ctx)
	if !ok {
		return Credentials{}, fmt.Errorf("auth: login cancelled or timed out waiting for callback")
	}

	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return Credentials{}, fmt.Errorf("auth: exchange authorization code: %w", err)
	}

	return Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		LastRefresh:  time.Now(),
	}, nil
}
