// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package tokenmint mints short-lived bearer tokens for a job spec's
// outbound calls via an OAuth2 client-credentials grant (spec §4.5: "tokens
// for outbound calls are minted via client-credentials grant at job-spec-
// build time and injected as plain env vars"). golang.org/x/oauth2's
// clientcredentials.Config is the standard library for this grant; no pack
// example happens to exercise it directly, but it is the only OAuth2
// package SkyDriver's go.mod carries and is purpose-built for exactly this
// grant type.
package tokenmint

import (
	"context"

	"golang.org/x/oauth2/clientcredentials"
)

// Minter mints a bearer token for one OAuth2 client-credentials client.
type Minter struct {
	cfg clientcredentials.Config
}

// New builds a Minter against tokenURL using clientID/clientSecret.
func New(tokenURL, clientID, clientSecret string) *Minter {
	return &Minter{cfg: clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}}
}

// Mint requests a fresh access token. Returns "" with no error if the
// minter has no token URL configured (local/dev mode without Keycloak).
func (m *Minter) Mint(ctx context.Context) (string, error) {
	if m.cfg.TokenURL == "" {
		return "", nil
	}
	tok, err := m.cfg.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
