// Package pages holds the HTML pages rendered by the security core: the
// login form, the second-factor form, the portal home and the rejection
// page. Components are plain templ.Components so they render through
// middleware.Render like any generated template.
package pages

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/hrportal/internal/templates/layouts"
)

// Form field names shared with the handlers that read them back.
const (
	FieldUsername  = "username"
	FieldPassword  = "password"
	FieldCode      = "code"
	FieldCSRFToken = "csrf_token"
)

// LoginPage renders the username/password form with an optional error.
func LoginPage(csrfToken, username, errMsg string) templ.Component {
	return shell("Sign in", csrfToken, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w,
			`<h1>Sign in</h1>`,
			errorBanner(errMsg),
			`<form method="post" action="/login" hx-post="/login">`,
			hiddenToken(csrfToken),
			`<label>Username <input type="text" name="`+FieldUsername+`" autocomplete="username" required value="`+templ.EscapeString(username)+`"></label>`,
			`<label>Password <input type="password" name="`+FieldPassword+`" autocomplete="current-password" required></label>`,
			`<button type="submit">Sign in</button>`,
			`</form>`,
		)
	}))
}

// SecondFactorPage renders the one-time code form shown after a password
// check succeeded for an account with TOTP enabled.
func SecondFactorPage(csrfToken, errMsg string) templ.Component {
	return shell("Verification code", csrfToken, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w,
			`<h1>Enter your verification code</h1>`,
			errorBanner(errMsg),
			`<form method="post" action="/login/verify" hx-post="/login/verify">`,
			hiddenToken(csrfToken),
			`<label>Code <input type="text" name="`+FieldCode+`" inputmode="numeric" autocomplete="one-time-code" maxlength="7" required></label>`,
			`<button type="submit">Verify</button>`,
			`</form>`,
			`<p><a href="/login">Start over</a></p>`,
		)
	}))
}

// HomePage is the landing page for a signed-in user.
func HomePage() templ.Component {
	return shell("Portal", "", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return writeAll(w,
			`<h1>Welcome, `+templ.EscapeString(layouts.GetUserName(ctx))+`</h1>`,
			`<p>Signed in as `+templ.EscapeString(layouts.GetRole(ctx))+`.</p>`,
			`<form method="post" action="/logout">`,
			hiddenToken(layouts.GetCSRFToken(ctx)),
			`<button type="submit">Sign out</button>`,
			`</form>`,
		)
	}))
}

// ErrorPage renders a rejection with its status code and safe message.
func ErrorPage(code int, message string) templ.Component {
	title := http.StatusText(code)
	if title == "" {
		title = "Error"
	}
	return shell(title, "", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		body := []string{
			fmt.Sprintf(`<h1>%d %s</h1>`, code, templ.EscapeString(title)),
			`<p class="error">` + templ.EscapeString(message) + `</p>`,
		}
		if code == http.StatusUnauthorized || code == 419 {
			body = append(body, `<p><a href="/login">Sign in</a></p>`)
		} else {
			body = append(body, `<p><a href="/">Back to the portal</a></p>`)
		}
		return writeAll(w, body...)
	}))
}

// shell wraps content in the minimal document layout. The CSRF token is
// exposed in a meta tag for scripts that send X-CSRF-Token; when the layout
// injector has put a token in the context it takes precedence.
func shell(title, csrfToken string, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if t := layouts.GetCSRFToken(ctx); t != "" {
			csrfToken = t
		}
		head := `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">` +
			`<meta name="viewport" content="width=device-width, initial-scale=1">` +
			`<title>` + templ.EscapeString(title) + ` | HR Portal</title>`
		if csrfToken != "" {
			head += `<meta name="csrf-token" content="` + templ.EscapeString(csrfToken) + `">`
		}
		head += `</head><body><main>`
		if err := writeAll(w, head); err != nil {
			return err
		}
		if err := content.Render(ctx, w); err != nil {
			return err
		}
		return writeAll(w, `</main></body></html>`)
	})
}

func hiddenToken(token string) string {
	if token == "" {
		return ""
	}
	return `<input type="hidden" name="` + FieldCSRFToken + `" value="` + templ.EscapeString(token) + `">`
}

func errorBanner(msg string) string {
	if msg == "" {
		return ""
	}
	return `<div class="alert" role="alert">` + templ.EscapeString(msg) + `</div>`
}

func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}
