package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// WhatsAppStatus reads the link status. Public: no token is sent.
func (c *Client) WhatsAppStatus(ctx context.Context) (*WhatsAppStatus, error) {
	var out WhatsAppStatus
	if err := c.do(ctx, request{op: "whatsapp.status", method: http.MethodGet, path: "/whatsapp/status"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectWhatsApp starts pairing. The server may answer with a QR code,
// report the account as already connected, or keep the request open until
// pairing progresses, so it runs with the long connect timeout.
func (c *Client) ConnectWhatsApp(ctx context.Context) (*ConnectResponse, error) {
	var out ConnectResponse
	r := request{op: "whatsapp.connect", method: http.MethodPost, path: "/whatsapp/connect-auth", auth: true, timeout: c.connectTimeout}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisconnectWhatsApp unlinks the account.
func (c *Client) DisconnectWhatsApp(ctx context.Context) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.do(ctx, request{op: "whatsapp.disconnect", method: http.MethodPost, path: "/whatsapp/disconnect", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RestoreWhatsApp asks the server to resume a previously linked session.
func (c *Client) RestoreWhatsApp(ctx context.Context) (*ConnectResponse, error) {
	var out ConnectResponse
	if err := c.do(ctx, request{op: "whatsapp.restore", method: http.MethodPost, path: "/whatsapp/restore", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WhatsAppInfo returns details of the linked account.
func (c *Client) WhatsAppInfo(ctx context.Context) (*WhatsAppInfo, error) {
	var out WhatsAppInfo
	if err := c.do(ctx, request{op: "whatsapp.info", method: http.MethodGet, path: "/whatsapp/info-auth", auth: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WhatsAppAvailability reports which server features are enabled. Public.
func (c *Client) WhatsAppAvailability(ctx context.Context) (*Availability, error) {
	var out Availability
	if err := c.do(ctx, request{op: "whatsapp.availability", method: http.MethodGet, path: "/whatsapp/availability"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WhatsAppMessages pages through messages seen by the linked account.
func (c *Client) WhatsAppMessages(ctx context.Context, q WhatsAppMessagesQuery) (*WhatsAppMessages, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Direction != "" {
		params.Set("direction", q.Direction)
	}

	var out WhatsAppMessages
	r := request{op: "whatsapp.messages", method: http.MethodGet, path: "/whatsapp/messages", query: params, auth: true}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
