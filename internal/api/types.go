package api

import "github.com/nextlevelbuilder/omniwp/pkg/protocol"

// User is an account of the CRM.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ClientRecord is a customer (the API calls it a client).
type ClientRecord struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
}

type ClientInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// ClientUpdate carries only the fields being changed.
type ClientUpdate struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

// OrderStatus is the lifecycle of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pendiente"
	OrderInProgress OrderStatus = "en_proceso"
	OrderCompleted  OrderStatus = "completado"
	OrderCancelled  OrderStatus = "cancelado"
)

// OrderStatuses lists every valid status in display order.
var OrderStatuses = []OrderStatus{OrderPending, OrderInProgress, OrderCompleted, OrderCancelled}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Order struct {
	ID          string      `json:"id" yaml:"id"`
	ClientID    string      `json:"clientId" yaml:"clientId"`
	Description string      `json:"description" yaml:"description"`
	Status      OrderStatus `json:"status" yaml:"status"`
}

type OrderInput struct {
	ClientID    string `json:"clientId"`
	Description string `json:"description"`
}

// OrderUpdate carries only the fields being changed. Empty values are
// dropped before sending.
type OrderUpdate struct {
	Description string      `json:"description,omitempty"`
	Status      OrderStatus `json:"status,omitempty"`
}

// TemplateType names a message template.
type TemplateType string

const (
	TemplateConfirmation TemplateType = "confirmacion"
	TemplateReminder     TemplateType = "recordatorio"
	TemplateFollowUp     TemplateType = "seguimiento"
	TemplateDelivery     TemplateType = "entrega"
	TemplateThanks       TemplateType = "agradecimiento"
)

// GenerateTemplates are the types accepted by the template preview endpoint.
var GenerateTemplates = []TemplateType{TemplateConfirmation, TemplateReminder, TemplateFollowUp}

// SendTemplates are the types accepted when actually sending.
var SendTemplates = []TemplateType{TemplateConfirmation, TemplateReminder, TemplateFollowUp, TemplateDelivery, TemplateThanks}

type TemplateRequest struct {
	TemplateType TemplateType `json:"templateType"`
	ClientID     string       `json:"clientId"`
	OrderID      string       `json:"orderId"`
}

type TemplateResponse struct {
	Message string `json:"message"`
	Client  struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"client"`
	Order struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Status      string `json:"status"`
	} `json:"order"`
}

type MessageVariables struct {
	ClientName       string `json:"clientName"`
	OrderDescription string `json:"orderDescription"`
}

// SendRequest asks the server to deliver a templated message. The delivery
// channel is chosen by the server.
type SendRequest struct {
	ClientID     string           `json:"clientId"`
	OrderID      string           `json:"orderId"`
	TemplateType TemplateType     `json:"templateType"`
	Variables    MessageVariables `json:"variables"`
}

type SendResponse struct {
	ID                string `json:"id" yaml:"id"`
	Status            string `json:"status" yaml:"status"`
	ProviderMessageID string `json:"providerMessageId" yaml:"providerMessageId"`
	Channel           string `json:"channel" yaml:"channel"`
}

type Message struct {
	ID                string `json:"id" yaml:"id"`
	ClientID          string `json:"clientId" yaml:"clientId"`
	OrderID           string `json:"orderId" yaml:"orderId"`
	Channel           string `json:"channel" yaml:"channel"`
	Status            string `json:"status" yaml:"status"`
	Text              string `json:"text" yaml:"text"`
	CreatedAt         string `json:"createdAt" yaml:"createdAt"`
	UpdatedAt         string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	ProviderMessageID string `json:"providerMessageId,omitempty" yaml:"providerMessageId,omitempty"`
}

// MessageFilters narrows the message history. Empty fields are not sent.
type MessageFilters struct {
	ClientID string
	OrderID  string
	Status   string
	Channel  string
}

// Key returns a stable cache key fragment for the filters.
func (f MessageFilters) Key() string {
	return f.ClientID + "|" + f.OrderID + "|" + f.Status + "|" + f.Channel
}

type WhatsAppStatus struct {
	Status   protocol.LinkStatus `json:"status" yaml:"status"`
	Message  string              `json:"message,omitempty" yaml:"message,omitempty"`
	LastSeen string              `json:"lastSeen,omitempty" yaml:"lastSeen,omitempty"`
}

type WhatsAppInfo struct {
	Number         string `json:"number" yaml:"number"`
	Name           string `json:"name,omitempty" yaml:"name,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty" yaml:"profilePicture,omitempty"`
	IsConnected    bool   `json:"isConnected" yaml:"isConnected"`
	LastSeen       string `json:"lastSeen,omitempty" yaml:"lastSeen,omitempty"`
}

// Connect result statuses.
const (
	ConnectQRGenerated = "qr_generated"
	ConnectConnected   = "connected"
	ConnectError       = "error"
)

// ConnectResponse is returned by connect-auth and restore.
type ConnectResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	QRCode  string `json:"qrCode,omitempty"`
}

// ActionResponse is the generic {success, message} reply.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Availability struct {
	WhatsAppWeb struct {
		Enabled bool `json:"enabled" yaml:"enabled"`
	} `json:"whatsappWeb" yaml:"whatsappWeb"`
	Features struct {
		Redis      bool `json:"redis" yaml:"redis"`
		WebSockets bool `json:"websockets" yaml:"websockets"`
	} `json:"features" yaml:"features"`
}

type WhatsAppMessage struct {
	ID          string `json:"id" yaml:"id"`
	From        string `json:"from" yaml:"from"`
	To          string `json:"to" yaml:"to"`
	Body        string `json:"body" yaml:"body"`
	Direction   string `json:"direction" yaml:"direction"`
	Timestamp   string `json:"timestamp" yaml:"timestamp"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
	MessageType string `json:"messageType,omitempty" yaml:"messageType,omitempty"`
}

type WhatsAppMessagesQuery struct {
	Limit     int
	Offset    int
	Direction string // "incoming" or "outgoing"
}

type WhatsAppMessages struct {
	Messages []WhatsAppMessage `json:"messages" yaml:"messages"`
	Total    int               `json:"total" yaml:"total"`
}

type Health struct {
	Status string `json:"status" yaml:"status"`
}

type deleteResponse struct {
	Message string `json:"message"`
}
