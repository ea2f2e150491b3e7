// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/elemarin/paw/internal/secrets"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// defaultHTTPClient is used by every client command. Tests swap it for one
// pointed at an httptest server.
var defaultHTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}

// streamHTTPClient has no overall timeout since a streamed turn may run for
// as long as the agent works.
var streamHTTPClient = &http.Client{}

// apiClient provides HTTP access to a running paw server.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newAPIClient targets --address, falling back to server.listen. A
// server.api_key that is a keyring reference is resolved first.
func newAPIClient() *apiClient {
	addr := viper.GetString("address")
	if addr == "" {
		addr = viper.GetString("server.listen")
	}
	token := viper.GetString("server.api_key")
	if secrets.IsRef(token) {
		resolved, err := secrets.Resolve(secretStoreFactory(), token)
		if err != nil {
			token = ""
		} else {
			token = resolved
		}
	}
	return &apiClient{
		baseURL: baseURL(addr),
		token:   token,
		http:    defaultHTTPClient,
	}
}

// baseURL turns a listen address into a URL a client can dial. A bare
// ":port" means the local host.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, pawerr.Errorf(pawerr.CodeCLIInputInvalid, "encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, pawerr.Errorf(pawerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends the request and returns the response when its status is 2xx.
func (c *apiClient) do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, pawerr.New(pawerr.CodeCLIGatewayNotRunning,
				fmt.Sprintf("paw server is not running at %s (start it with `paw start`)", c.baseURL))
		}
		return nil, pawerr.Errorf(pawerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, responseError(resp)
	}
	return resp, nil
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *apiClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, dest)
}

// doJSON sends body as JSON and decodes the response into dest. A nil dest
// discards the response body.
func (c *apiClient) doJSON(ctx context.Context, method, path string, body, dest any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(c.http, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pawerr.Errorf(pawerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// responseError turns an error response into a readable error. Problem
// details from the API carry the message in detail.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message  string `json:"message"`
			Location string `json:"location"`
			Value    any    `json:"value"`
		} `json:"errors"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &problem) == nil && (problem.Detail != "" || problem.Title != "") {
		msg = problem.Detail
		if msg == "" {
			msg = problem.Title
		}
		for _, e := range problem.Errors {
			if e.Location == "code" {
				msg += fmt.Sprintf(" [%v]", e.Value)
				continue
			}
			msg += fmt.Sprintf("; %s (%s)", e.Message, e.Location)
		}
	}
	return pawerr.New(pawerr.CodeCLIRequestFailure,
		fmt.Sprintf("server returned %d: %s", resp.StatusCode, msg))
}

// isDialError reports whether err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
