package api

import (
	"context"
	"net/http"
	"net/url"
)

// GenerateTemplate renders a template for a client and order without sending it.
func (c *Client) GenerateTemplate(ctx context.Context, in TemplateRequest) (*TemplateResponse, error) {
	var out TemplateResponse
	r := request{op: "messages.template", method: http.MethodPost, path: "/messages/template", body: in, auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage queues a templated message for delivery.
func (c *Client) SendMessage(ctx context.Context, in SendRequest) (*SendResponse, error) {
	var out SendResponse
	r := request{op: "messages.send", method: http.MethodPost, path: "/messages/send", body: in, auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages returns the message history matching f.
func (c *Client) ListMessages(ctx context.Context, f MessageFilters) ([]Message, error) {
	q := url.Values{}
	for k, v := range map[string]string{
		"clientId": f.ClientID,
		"orderId":  f.OrderID,
		"status":   f.Status,
		"channel":  f.Channel,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}

	var out []Message
	r := request{op: "messages.list", method: http.MethodGet, path: "/messages", query: q, auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return out, nil
}
