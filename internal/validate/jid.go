package validate

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// PhoneJID turns a client phone ("+549...", "549 11 ...") into the WhatsApp
// user JID the backend links against.
func PhoneJID(phone string) (types.JID, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) < 10 {
		return types.EmptyJID, fmt.Errorf("phone %q has too few digits", phone)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// DisplayPhone formats what the backend reports for a linked account, which
// may be a bare number or a full JID ("5491122334455:12@s.whatsapp.net").
func DisplayPhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "@") {
		if jid, err := types.ParseJID(raw); err == nil && jid.User != "" {
			return "+" + jid.User
		}
	}
	if strings.HasPrefix(raw, "+") {
		return raw
	}
	return "+" + raw
}
