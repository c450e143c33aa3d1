// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	sigilerr "github.com/sigil-dev/ontograph/pkg/errors"
)

// statusClient is the HTTP client used by commands that talk to a running
// server. Tests point it at an httptest server.
var statusClient = &http.Client{
	Timeout: 5 * time.Second,
}

// serverClient provides HTTP access to a running ontograph server.
type serverClient struct {
	baseURL string
	http    *http.Client
}

func newServerClient(addr string) *serverClient {
	return &serverClient{
		baseURL: "http://" + addr,
		http:    statusClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *serverClient) getJSON(path string, dest any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		if isDialError(err) {
			return sigilerr.Wrap(err, sigilerr.CodeCLIGatewayNotRunning, "server is not running (connection refused)")
		}
		return sigilerr.Wrap(err, sigilerr.CodeCLIRequestFailure, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return sigilerr.Errorf(sigilerr.CodeCLIRequestFailure, "server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return sigilerr.Wrap(err, sigilerr.CodeCLIResponseInvalid, "invalid response")
	}
	return nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
