// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package worker

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/acme/autocert"

	"github.com/tomtom215/lifeline/internal/config"
)

// TLS modes.
const (
	TLSModeNone     = "none"
	TLSModeFiles    = "files"
	TLSModeAutocert = "autocert"
)

// tlsSetup is the secured listener's TLS configuration plus, in autocert
// mode, the manager whose HTTP handler answers ACME challenges on the
// redirect listener.
type tlsSetup struct {
	config   *tls.Config
	autocert *autocert.Manager
}

func newTLSSetup(cfg *config.TLSConfig) (*tlsSetup, error) {
	switch cfg.Mode {
	case "", TLSModeNone:
		return &tlsSetup{}, nil

	case TLSModeFiles:
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load TLS key pair: %w", err)
		}
		return &tlsSetup{config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}}, nil

	case TLSModeAutocert:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.AutocertHosts...),
			Cache:      autocert.DirCache(cfg.AutocertCacheDir),
			Email:      cfg.AutocertEmail,
		}
		tc := m.TLSConfig()
		tc.MinVersion = tls.VersionTLS12
		return &tlsSetup{config: tc, autocert: m}, nil

	default:
		return nil, fmt.Errorf("unknown TLS mode %q", cfg.Mode)
	}
}

// redirectHandler wraps the HTTP to HTTPS redirect. With autocert the ACME
// HTTP-01 challenge is served first.
func (t *tlsSetup) redirectHandler(securePort func() int) http.Handler {
	h := redirectToSecure(securePort)
	if t.autocert != nil {
		return t.autocert.HTTPHandler(h)
	}
	return h
}

// redirectToSecure answers every request with a permanent redirect to the
// same host and path on the secured port.
func redirectToSecure(securePort func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		} else {
			host = strings.Trim(host, "[]")
		}
		if port := securePort(); port != 443 {
			host = net.JoinHostPort(host, strconv.Itoa(port))
		}
		target := "https://" + host + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}
