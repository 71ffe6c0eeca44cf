package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/validate"
)

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			var err error
			if email, err = valueOrPrompt(email, "Email", "", validate.EmailMessage); err != nil {
				return err
			}
			if password == "" {
				if password, err = promptPassword("Contraseña", "", nil); err != nil {
					return err
				}
			}
			user, err := a.svc.Login(ctx, api.LoginRequest{Email: email, Password: password})
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s <%s>\n", user.Name, user.Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func registerCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			var err error
			if name, err = valueOrPrompt(name, "Nombre", "", validate.NameMessage); err != nil {
				return err
			}
			if email, err = valueOrPrompt(email, "Email", "", validate.EmailMessage); err != nil {
				return err
			}
			if password == "" {
				if password, err = promptPassword("Contraseña", "Al menos 6 caracteres", validate.PasswordMessage); err != nil {
					return err
				}
			}
			if err := a.svc.Register(ctx, api.RegisterRequest{Name: name, Email: email, Password: password}); err != nil {
				return err
			}
			fmt.Println("Account created. Run `omniwp login` to sign in.")
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "your name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			return a.svc.Logout(ctx)
		}),
	}
}

// tokenInfo is what whoami shows about the stored token.
type tokenInfo struct {
	UserID    string     `json:"userId" yaml:"userId"`
	Name      string     `json:"name" yaml:"name"`
	Email     string     `json:"email" yaml:"email"`
	Subject   string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	IssuedAt  *time.Time `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Expired   bool       `json:"expired" yaml:"expired"`
}

// inspectToken reads the claims without verifying the signature; the
// server is the one that checks it.
func inspectToken(raw string, now time.Time) (tokenInfo, error) {
	var info tokenInfo
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return info, fmt.Errorf("token is not a JWT: %w", err)
	}
	info.Subject, _ = claims.GetSubject()
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		info.IssuedAt = &t
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
		info.Expired = now.After(t)
	}
	return info, nil
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and token expiry",
		RunE: authed(func(ctx context.Context, a *app, args []string) error {
			snap := a.session.Snapshot()
			info, err := inspectToken(snap.Token, time.Now())
			if err != nil {
				info = tokenInfo{}
			}
			info.UserID, info.Name, info.Email = snap.User.ID, snap.User.Name, snap.User.Email
			return render(info, func() *table {
				t := newTable("FIELD", "VALUE")
				t.add("User", info.Name+" <"+info.Email+">")
				t.add("ID", info.UserID)
				if info.ExpiresAt != nil {
					t.add("Expires", info.ExpiresAt.Local().Format(time.RFC1123))
					t.add("Expired", yesNo(info.Expired))
				}
				return t
			})
		}),
	}
}
