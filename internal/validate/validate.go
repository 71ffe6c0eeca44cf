// Package validate checks form input before it is sent to the API.
// Messages are user-facing and kept in the product's Spanish.
package validate

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/omniwp/internal/api"
)

var phoneRe = regexp.MustCompile(`^\+?\d+$`)

// FieldError is a problem with one input field.
type FieldError struct {
	Field   string
	Message string
}

// Errors collects field errors. A nil Errors means valid input.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Field returns the first message for field, or "".
func (e Errors) Field(name string) string {
	for _, fe := range e {
		if fe.Field == name {
			return fe.Message
		}
	}
	return ""
}

type checker struct{ errs Errors }

func (c *checker) add(field, msg string) {
	c.errs = append(c.errs, FieldError{Field: field, Message: msg})
}

func (c *checker) minLen(field, value string, n int, msg string) {
	if m := minLenMessage(value, n, msg); m != "" {
		c.add(field, m)
	}
}

func (c *checker) email(field, value string) {
	if msg := EmailMessage(value); msg != "" {
		c.add(field, msg)
	}
}

func (c *checker) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return c.errs
}

// EmailMessage returns the error for an invalid address, or "".
func EmailMessage(value string) string {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndexByte(value, '@')+1:], ".") {
		return "Email inválido"
	}
	return ""
}

// PhoneMessage returns the error for an invalid client phone, or "".
func PhoneMessage(phone string) string {
	switch {
	case len(phone) < 10:
		return "El teléfono debe tener al menos 10 caracteres"
	case !phoneRe.MatchString(phone):
		return "El teléfono debe contener solo dígitos"
	case !strings.HasPrefix(phone, "54") && !strings.HasPrefix(phone, "+54"):
		return "El teléfono debe incluir código de país (ej: 549112345678)"
	}
	return ""
}

// NameMessage checks a single name field, for interactive forms.
func NameMessage(v string) string { return minLenMessage(v, 2, msgName) }

func PasswordMessage(v string) string { return minLenMessage(v, 6, msgPassword) }

func DescriptionMessage(v string) string { return minLenMessage(v, 5, msgDescription) }

func minLenMessage(value string, n int, msg string) string {
	if utf8.RuneCountInString(strings.TrimSpace(value)) < n {
		return msg
	}
	return ""
}

const (
	msgName        = "El nombre debe tener al menos 2 caracteres"
	msgPassword    = "La contraseña debe tener al menos 6 caracteres"
	msgDescription = "La descripción debe tener al menos 5 caracteres"
	msgClient      = "Debe seleccionar un cliente"
	msgOrder       = "Debe seleccionar un pedido"
	msgStatus      = "Estado inválido"
	msgTemplate    = "Tipo de plantilla inválido"
	msgNoPhone     = "El cliente debe tener un número de teléfono para enviar WhatsApp"
)

func Login(in api.LoginRequest) error {
	var c checker
	c.email("email", in.Email)
	c.minLen("password", in.Password, 6, msgPassword)
	return c.err()
}

func Register(in api.RegisterRequest) error {
	var c checker
	c.minLen("name", in.Name, 2, msgName)
	c.email("email", in.Email)
	c.minLen("password", in.Password, 6, msgPassword)
	return c.err()
}

// Client validates a new client. Email is optional.
func Client(in api.ClientInput) error {
	var c checker
	c.minLen("name", in.Name, 2, msgName)
	if msg := PhoneMessage(in.Phone); msg != "" {
		c.add("phone", msg)
	}
	if in.Email != "" {
		c.email("email", in.Email)
	}
	return c.err()
}

// ClientUpdate applies the client rules to the fields being changed.
func ClientUpdate(in api.ClientUpdate) error {
	var c checker
	if in.Name != nil {
		c.minLen("name", *in.Name, 2, msgName)
	}
	if in.Phone != nil {
		if msg := PhoneMessage(*in.Phone); msg != "" {
			c.add("phone", msg)
		}
	}
	if in.Email != nil && *in.Email != "" {
		c.email("email", *in.Email)
	}
	return c.err()
}

func Order(in api.OrderInput) error {
	var c checker
	if strings.TrimSpace(in.ClientID) == "" {
		c.add("clientId", msgClient)
	}
	c.minLen("description", in.Description, 5, msgDescription)
	return c.err()
}

// OrderUpdate checks the fields being changed. Empty fields are not sent.
func OrderUpdate(in api.OrderUpdate) error {
	var c checker
	if in.Description != "" {
		c.minLen("description", in.Description, 5, msgDescription)
	}
	if in.Status != "" && !in.Status.Valid() {
		c.add("status", msgStatus)
	}
	return c.err()
}

func Template(in api.TemplateRequest) error {
	var c checker
	if !templateIn(in.TemplateType, api.GenerateTemplates) {
		c.add("templateType", msgTemplate)
	}
	if strings.TrimSpace(in.ClientID) == "" {
		c.add("clientId", msgClient)
	}
	if strings.TrimSpace(in.OrderID) == "" {
		c.add("orderId", msgOrder)
	}
	return c.err()
}

// Send validates a send request. clientPhone is the phone of the target
// client; sending needs one.
func Send(in api.SendRequest, clientPhone string) error {
	var c checker
	if strings.TrimSpace(in.ClientID) == "" {
		c.add("clientId", msgClient)
	} else if strings.TrimSpace(clientPhone) == "" {
		c.add("clientId", msgNoPhone)
	}
	if strings.TrimSpace(in.OrderID) == "" {
		c.add("orderId", msgOrder)
	}
	if !templateIn(in.TemplateType, api.SendTemplates) {
		c.add("templateType", msgTemplate)
	}
	return c.err()
}

func templateIn(t api.TemplateType, allowed []api.TemplateType) bool {
	for _, a := range allowed {
		if t == a {
			return true
		}
	}
	return false
}
