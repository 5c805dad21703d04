package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/shopspring/decimal"
)

// Template kinds, one per notification.
const (
	KindContact             = "contact"
	KindDonation            = "donation"
	KindSubscriptionPayment = "subscription_payment"
	KindAnnouncement        = "announcement"
	KindBroadcast           = "broadcast"
)

//go:embed templates/*.txt templates/*.html
var templateFS embed.FS

// Rendered is a message body ready to address.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

// Renderer executes the embedded text and HTML templates.
type Renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := map[string]any{"paragraphs": paragraphs}
	text, err := texttemplate.New("text").Funcs(funcs).ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	html, err := htmltemplate.New("html").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	return &Renderer{text: text, html: html}, nil
}

func (r *Renderer) Render(kind string, data any) (Rendered, error) {
	var subject, text, html bytes.Buffer
	if err := r.text.ExecuteTemplate(&subject, kind+".subject", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := r.text.ExecuteTemplate(&text, kind+".txt", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s text: %w", kind, err)
	}
	if err := r.html.ExecuteTemplate(&html, kind+".html", data); err != nil {
		return Rendered{}, fmt.Errorf("render %s html: %w", kind, err)
	}
	return Rendered{
		Subject: singleLine(subject.String()),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// singleLine collapses whitespace so user input cannot break the header.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// zeroDecimal lists currencies whose minor unit is the major unit.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatMoney renders a minor-unit amount in major units with the upper-case
// currency code, e.g. 2500 eur -> "25.00 EUR".
func FormatMoney(amount int64, currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	places := int32(2)
	if zeroDecimal[currency] {
		places = 0
	}
	value := decimal.New(amount, -places).StringFixed(places)
	if currency == "" {
		return value
	}
	return value + " " + strings.ToUpper(currency)
}
