// Package notify hands templated messages to the external messaging service that
// owns the email and WhatsApp channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/httpclient"
)

// Message is a (template, variables, recipient) triple.
type Message struct {
	TemplateName string   `json:"template_name"`
	Variables    []string `json:"variables"`
	Recipient    string   `json:"recipient"`
}

type Client struct {
	transport *httpclient.Client
	endpoint  string
	apiKey    string
}

func NewClient(cfg config.NotifyConfig, transport *httpclient.Client) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("notify base url is required")
	}
	if transport == nil {
		return nil, errors.New("http transport is required")
	}
	return &Client{
		transport: transport,
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + "/v1/messages",
		apiKey:    cfg.APIKey,
	}, nil
}

// Send submits msg. The service answers 202 with no body.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.TemplateName == "" || msg.Recipient == "" {
		return errors.New("template name and recipient are required")
	}
	if msg.Variables == nil {
		msg.Variables = []string{}
	}
	body, err := httpclient.JSONBody(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	_, err = c.transport.Do(ctx, httpclient.Request{
		Operation: "send_" + msg.TemplateName,
		Method:    http.MethodPost,
		URL:       c.endpoint,
		Header:    header,
		Body:      body,
	})
	return err
}
