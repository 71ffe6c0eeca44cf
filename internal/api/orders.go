package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.do(ctx, request{op: "orders.list", method: http.MethodGet, path: "/orders", auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateOrder(ctx context.Context, in OrderInput) (*Order, error) {
	var out Order
	if err := c.do(ctx, request{op: "orders.create", method: http.MethodPost, path: "/orders", body: in, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrder sends only the non-empty fields of in.
func (c *Client) UpdateOrder(ctx context.Context, id string, in OrderUpdate) (*Order, error) {
	body := map[string]string{}
	if d := strings.TrimSpace(in.Description); d != "" {
		body["description"] = in.Description
	}
	if in.Status != "" {
		body["status"] = string(in.Status)
	}

	var out Order
	r := request{op: "orders.update", method: http.MethodPut, path: "/orders/" + url.PathEscape(id), body: body, auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteOrder(ctx context.Context, id string) (string, error) {
	var out deleteResponse
	r := request{op: "orders.delete", method: http.MethodDelete, path: "/orders/" + url.PathEscape(id), auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
