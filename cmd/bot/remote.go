package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"remindbot/internal/task"
)

// opsBaseURL turns the configured listen address into a URL a local client
// can dial. Wildcard hosts become loopback.
func opsBaseURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "", fmt.Errorf("http.addr %q: %w", addr, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// fireRemote asks a running bot to fire slot through its ops API, so the
// dispatch runs under that process's per-record locks. reached is false when
// nothing listens on addr.
func fireRemote(ctx context.Context, client *http.Client, addr, token string, slot task.CheckTime) (reached bool, err error) {
	base, err := opsBaseURL(addr)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/slots/"+url.PathEscape(string(slot))+"/fire", nil)
	if err != nil {
		return false, err
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return false, nil
		}
		return false, fmt.Errorf("ops api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return true, nil
	}
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return true, fmt.Errorf("ops api: %d %s", resp.StatusCode, body.Error)
}
