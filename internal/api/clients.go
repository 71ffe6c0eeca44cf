package api

import (
	"context"
	"net/http"
	"net/url"
)

func (c *Client) ListClients(ctx context.Context) ([]ClientRecord, error) {
	var out []ClientRecord
	if err := c.do(ctx, request{op: "clients.list", method: http.MethodGet, path: "/clients", auth: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateClient(ctx context.Context, in ClientInput) (*ClientRecord, error) {
	var out ClientRecord
	if err := c.do(ctx, request{op: "clients.create", method: http.MethodPost, path: "/clients", body: in, auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateClient(ctx context.Context, id string, in ClientUpdate) (*ClientRecord, error) {
	var out ClientRecord
	r := request{op: "clients.update", method: http.MethodPut, path: "/clients/" + url.PathEscape(id), body: in, auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteClient removes a client and returns the server's confirmation text.
func (c *Client) DeleteClient(ctx context.Context, id string) (string, error) {
	var out deleteResponse
	r := request{op: "clients.delete", method: http.MethodDelete, path: "/clients/" + url.PathEscape(id), auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
