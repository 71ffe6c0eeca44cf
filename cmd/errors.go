package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/crm"
	"github.com/nextlevelbuilder/omniwp/internal/pairing"
	"github.com/nextlevelbuilder/omniwp/internal/push"
	"github.com/nextlevelbuilder/omniwp/internal/session"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

// formatError turns an error into one line for the terminal.
// Never expose raw API payloads to the user.
func formatError(err error) string {
	var fe validate.Errors
	if errors.As(err, &fe) {
		lines := make([]string, 0, len(fe))
		for _, f := range fe {
			lines = append(lines, f.Field+": "+f.Message)
		}
		return "invalid input\n  " + strings.Join(lines, "\n  ")
	}

	switch {
	case errors.Is(err, session.ErrNoToken):
		return "not logged in. Run `omniwp login` first."
	case errors.Is(err, api.ErrUnauthorized):
		return "session expired. Run `omniwp login` again."
	case errors.Is(err, push.ErrRejected):
		return "the server refused the live connection. Log in again."
	case errors.Is(err, pairing.ErrConnectInProgress), errors.Is(err, pairing.ErrAlreadyLinked):
		return err.Error()
	case errors.Is(err, crm.ErrClientHasOrders), errors.Is(err, crm.ErrNotFound):
		return err.Error()
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case api.KindNetwork:
			return "cannot reach the API. Check api.baseUrl or run `omniwp doctor`."
		case api.KindTimeout:
			return "the API did not answer in time. Please try again."
		case api.KindServer:
			return "the API failed (" + statusText(apiErr) + "). Please try again later."
		case api.KindDecode:
			return "the API sent a response this version cannot read."
		case api.KindValidation:
			if apiErr.Message != "" {
				return apiErr.Message
			}
			return "request rejected (" + statusText(apiErr) + ")"
		}
	}
	return err.Error()
}

func statusText(e *api.Error) string {
	if e.Status == 0 {
		return "no response"
	}
	return "HTTP " + itoa(e.Status)
}
