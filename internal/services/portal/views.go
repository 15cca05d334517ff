package portal

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
	"github.com/zmooth/zmooth/internal/platform/branding"
)

const csrfFieldName = "gorilla.csrf.Token"

type planView struct {
	Name        string
	Description string
	Price       string
	Featured    bool
}

type indexView struct {
	Brand     branding.Settings
	Plans     []planView
	CSRFField string
	CSRFToken string
	MAC       string
	IP        string
}

type resultView struct {
	Brand    branding.Settings
	Plan     string
	Username string
	Expires  string
	Error    string
}

var e = templ.EscapeString[string]

// layout wraps body in the branded page shell.
func layout(brand branding.Settings, title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s | %s</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;background:#f8fafc;color:#0f172a}
header{background:%s;color:#fff;padding:1rem 1.5rem;display:flex;align-items:center;gap:1rem}
header img{height:40px}
main{max-width:640px;margin:0 auto;padding:1.5rem}
.plan{background:#fff;border-radius:8px;padding:1rem;margin-bottom:.75rem;display:flex;justify-content:space-between}
.plan.featured{border:2px solid %s}
form{background:#fff;border-radius:8px;padding:1rem;display:grid;gap:.75rem}
input{padding:.6rem;font-size:1rem}
button{padding:.7rem;font-size:1rem;background:%s;color:#fff;border:0;border-radius:6px}
.error{color:#b91c1c}
footer{text-align:center;color:#64748b;padding:1rem}
</style>
</head>
<body>
<header>`, e(title), e(brand.CompanyName), e(brand.PrimaryColor), e(brand.PrimaryColor), e(brand.PrimaryColor))
		if err != nil {
			return err
		}
		if brand.LogoURL != "" {
			if _, err := fmt.Fprintf(w, `<img src="%s" alt="">`, e(brand.LogoURL)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "<strong>%s</strong></header>\n<main>\n", e(brand.CompanyName)); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "</main>\n<footer>"); err != nil {
			return err
		}
		if brand.SupportPhone != "" {
			if _, err := fmt.Fprintf(w, "Call %s ", e(brand.SupportPhone)); err != nil {
				return err
			}
		}
		if brand.SupportEmail != "" {
			if _, err := fmt.Fprintf(w, `<a href="mailto:%s">%s</a>`, e(brand.SupportEmail), e(brand.SupportEmail)); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "</footer>\n</body>\n</html>\n")
		return err
	})
}

func indexPage(v indexView) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<p>%s</p>\n<h2>Plans</h2>\n", e(v.Brand.WelcomeText)); err != nil {
			return err
		}
		if len(v.Plans) == 0 {
			if _, err := io.WriteString(w, "<p>No plans are available right now.</p>\n"); err != nil {
				return err
			}
		}
		for _, plan := range v.Plans {
			class := "plan"
			if plan.Featured {
				class += " featured"
			}
			if _, err := fmt.Fprintf(w, `<div class="%s"><div><strong>%s</strong><br><small>%s</small></div><div>%s</div></div>`+"\n",
				class, e(plan.Name), e(plan.Description), e(plan.Price)); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, `<h2>Redeem a voucher</h2>
<form method="post" action="/portal/redeem">
<input type="hidden" name="%s" value="%s">
<input type="hidden" name="mac" value="%s">
<input type="hidden" name="ip" value="%s">
<input name="code" placeholder="XXXX-XXXX-XXXX" required autocomplete="off">
<input name="username" placeholder="Username (optional)" autocomplete="username">
<button type="submit">Connect</button>
</form>
`, e(v.CSRFField), e(v.CSRFToken), e(v.MAC), e(v.IP))
		return err
	})
	return layout(v.Brand, "Welcome", body)
}

func resultPage(v resultView) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if v.Error != "" {
			_, err := fmt.Fprintf(w, `<h2>Redeem failed</h2><p class="error">%s</p><p><a href="/portal">Back</a></p>`+"\n", e(v.Error))
			return err
		}
		if _, err := fmt.Fprintf(w, "<h2>You are connected</h2>\n<p>Plan: <strong>%s</strong></p>\n<p>Username: <strong>%s</strong></p>\n",
			e(v.Plan), e(v.Username)); err != nil {
			return err
		}
		if v.Expires != "" {
			if _, err := fmt.Fprintf(w, "<p>Valid until %s</p>\n", e(v.Expires)); err != nil {
				return err
			}
		}
		return nil
	})
	return layout(v.Brand, "Connected", body)
}
