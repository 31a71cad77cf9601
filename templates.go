package main

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
)

// loadTemplates loads and parses all HTML templates from the specified data
// directory. It returns a fully configured template or an error if any
// template fails to load or parse.
func loadTemplates(dataDir string) (*template.Template, error) {
	layoutPath := filepath.Join(dataDir, "templates", "layout.tmpl")
	dashboardPath := filepath.Join(dataDir, "templates", "dashboard.tmpl")
	loginPath := filepath.Join(dataDir, "templates", "login.tmpl")
	signupPath := filepath.Join(dataDir, "templates", "signup.tmpl")
	errorPath := filepath.Join(dataDir, "templates", "error.tmpl")

	layoutHTML, err := os.ReadFile(layoutPath)
	if err != nil {
		return nil, fmt.Errorf("load layout template: %w", err)
	}
	dashboardHTML, err := os.ReadFile(dashboardPath)
	if err != nil {
		return nil, fmt.Errorf("load dashboard template: %w", err)
	}
	loginHTML, err := os.ReadFile(loginPath)
	if err != nil {
		return nil, fmt.Errorf("load login template: %w", err)
	}
	signupHTML, err := os.ReadFile(signupPath)
	if err != nil {
		return nil, fmt.Errorf("load signup template: %w", err)
	}
	errorHTML, err := os.ReadFile(errorPath)
	if err != nil {
		return nil, fmt.Errorf("load error template: %w", err)
	}

	tmpl := template.New("dashboard")
	template.Must(tmpl.Parse(string(layoutHTML)))
	tmpl = template.Must(tmpl.New("dashboard").Parse(string(dashboardHTML)))
	template.Must(tmpl.New("login").Parse(string(loginHTML)))
	template.Must(tmpl.New("signup").Parse(string(signupHTML)))
	template.Must(tmpl.New("error").Parse(string(errorHTML)))

	return tmpl, nil
}

// ensureDefaultTemplates writes the bundled templates into
// data_dir/templates on first boot. Existing files are never overwritten so
// operators can customize the UI without recompiling.
func ensureDefaultTemplates(dataDir string) error {
	dir := filepath.Join(dataDir, "templates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	defaults := map[string]string{
		"layout.tmpl":    defaultLayoutTemplate,
		"dashboard.tmpl": defaultDashboardTemplate,
		"login.tmpl":     defaultLoginTemplate,
		"signup.tmpl":    defaultSignupTemplate,
		"error.tmpl":     defaultErrorTemplate,
	}
	for name, body := range defaults {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return err
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write default template %s: %w", name, err)
		}
		logger.Info("wrote default template", "path", path)
	}
	return nil
}

const defaultLayoutTemplate = `{{define "header"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.BrandName}}</title>
<style>
body { font-family: sans-serif; margin: 0; background: #10141c; color: #e6e6e6; }
header { padding: 1rem 2rem; background: #181f2b; display: flex; justify-content: space-between; align-items: center; }
header a { color: #7fb4ff; text-decoration: none; margin-left: 1rem; }
main { max-width: 960px; margin: 2rem auto; padding: 0 1rem; }
table { width: 100%; border-collapse: collapse; margin: 1rem 0; }
th, td { border-bottom: 1px solid #2a3344; padding: 0.5rem; text-align: left; }
.flash { background: #5a2d2d; border: 1px solid #a05050; padding: 0.75rem; margin: 1rem 0; border-radius: 4px; }
.notice { background: #2d4a2d; border: 1px solid #50a050; padding: 0.75rem; margin: 1rem 0; border-radius: 4px; }
.card { background: #181f2b; padding: 1rem 1.5rem; margin: 1rem 0; border-radius: 6px; }
form label { display: block; margin: 0.75rem 0 0.25rem; }
input[type=text], input[type=email], input[type=password] { width: 100%; padding: 0.5rem; background: #10141c; color: #e6e6e6; border: 1px solid #2a3344; border-radius: 4px; box-sizing: border-box; }
button { margin-top: 1rem; padding: 0.5rem 1.5rem; background: #2a6fd6; color: #fff; border: 0; border-radius: 4px; cursor: pointer; }
</style>
</head>
<body>
<header>
<strong>{{.BrandName}}</strong>
<nav>
{{if .LoggedIn}}
<a href="/dashboard">Dashboard</a>
<form method="post" action="/logout" style="display:inline"><button type="submit">Log out</button></form>
{{else}}
<a href="/login">Log in</a>
<a href="/signup">Sign up</a>
{{end}}
</nav>
</header>
<main>
{{if .Flash}}<div class="flash">{{.Flash}}</div>{{end}}
{{if .Notice}}<div class="notice">{{.Notice}}</div>{{end}}
{{end}}
{{define "footer"}}</main></body></html>{{end}}`

const defaultDashboardTemplate = `{{template "header" .}}
<h1>Dashboard</h1>
<div class="card">
<p>Welcome back, {{.User.Name}}.</p>
<p>Wallet: <code>{{.User.Wallet}}</code></p>
<p>Validation key: <code>{{.ValidationKey}}</code></p>
</div>
<div class="card">
<h2>Current round</h2>
<table>
<tr><th>Shares</th><th>Share %</th><th>Estimated payout ({{.Ticker}})</th><th>Pending balance ({{.Ticker}})</th></tr>
<tr><td>{{.Share.Shares}}</td><td>{{.Share.PercentFormatted}}%</td><td>{{.Share.EstimatedPayout}}</td><td>{{.PendingBalance}}</td></tr>
</table>
</div>
<div class="card">
<h2>Nodes ({{len .Nodes}} of {{.TotalNodes}} total)</h2>
<table>
<tr><th>Connection</th><th>Last seen</th><th></th></tr>
{{range .Nodes}}
<tr><td><code>{{.ConnectionString}}</code></td><td>{{.LastSeen}}</td>
<td><form method="post" action="/dashboard/deletenode"><input type="hidden" name="node_id" value="{{.ID}}"><button type="submit">Delete</button></form></td></tr>
{{else}}
<tr><td colspan="3">No nodes registered yet.</td></tr>
{{end}}
</table>
<form method="post" action="/dashboard/registernode">
<label for="ip">Node IP</label>
<input type="text" id="ip" name="ip" placeholder="203.0.113.7">
<label for="port">Port</label>
<input type="text" id="port" name="port" placeholder="9332">
<button type="submit">Register node</button>
</form>
</div>
<div class="card">
<h2>Payment history</h2>
<table>
<tr><th>Time (UTC)</th><th>Amount</th><th>Transaction</th></tr>
{{range .Payments}}
<tr><td>{{.Time}}</td><td>{{.Amount}}</td><td><code>{{.Hash}}</code></td></tr>
{{else}}
<tr><td colspan="3">No payments yet.</td></tr>
{{end}}
</table>
</div>
{{template "footer" .}}`

const defaultLoginTemplate = `{{template "header" .}}
<h1>Log in</h1>
<div class="card">
<form method="post" action="/login">
<label for="email">Email</label>
<input type="email" id="email" name="email" autocomplete="email">
<label for="password">Password</label>
<input type="password" id="password" name="password" autocomplete="current-password">
<button type="submit">Log in</button>
</form>
</div>
{{template "footer" .}}`

const defaultSignupTemplate = `{{template "header" .}}
<h1>Sign up</h1>
<div class="card">
<form method="post" action="/signup">
<label for="name">Name</label>
<input type="text" id="name" name="name">
<label for="email">Email</label>
<input type="email" id="email" name="email" autocomplete="email">
<label for="wallet">Wallet address</label>
<input type="text" id="wallet" name="wallet">
<label for="password">Password</label>
<input type="password" id="password" name="password" autocomplete="new-password">
<label for="confirm">Confirm password</label>
<input type="password" id="confirm" name="confirm" autocomplete="new-password">
<label><input type="checkbox" name="terms" value="on"> I accept the terms of service</label>
<button type="submit">Create account</button>
</form>
</div>
{{template "footer" .}}`

const defaultErrorTemplate = `{{template "header" .}}
<h1>Something went wrong</h1>
<div class="card"><p>{{.Message}}</p><p><a href="/dashboard">Back to the dashboard</a></p></div>
{{template "footer" .}}`
