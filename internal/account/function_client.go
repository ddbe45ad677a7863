package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// FunctionClient invokes the hosted delete-user function.
type FunctionClient struct {
	baseURL string
	apiKey  string
	base    *http.Client
}

// NewFunctionClient targets <functionsURL>/delete-user. apiKey is sent as the
// apikey header when set. base supplies the transport; nil uses the default.
func NewFunctionClient(functionsURL, apiKey string, base *http.Client) *FunctionClient {
	return &FunctionClient{
		baseURL: strings.TrimRight(functionsURL, "/"),
		apiKey:  apiKey,
		base:    base,
	}
}

type functionReply struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// DeleteUser posts to the function with the caller's bearer token.
func (c *FunctionClient) DeleteUser(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	if c.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	}
	client := oauth2.NewClient(ctx, ts)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/delete-user", strings.NewReader("{}"))
	if err != nil {
		return "", wrapCall(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", wrapCall(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", wrapCall(err)
	}

	var reply functionReply
	_ = json.Unmarshal(body, &reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := reply.Error
		if msg == "" {
			msg = fmt.Sprintf("delete-user function returned status %d", resp.StatusCode)
		}
		return "", &FunctionError{Status: resp.StatusCode, Message: msg}
	}
	return reply.Message, nil
}
