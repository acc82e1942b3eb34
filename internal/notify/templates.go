package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/internal/models"
)

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"title": StatusTitle,
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222;max-width:600px;margin:0 auto">
<h2 style="color:#1a1a1a">{{.Site.Name}}</h2>
{{template "content" .}}
<p style="color:#888;font-size:12px;margin-top:32px"><a href="{{.Site.URL}}">{{.Site.URL}}</a></p>
</body></html>{{end}}
{{define "items"}}<table style="width:100%;border-collapse:collapse">
<tr><th align="left">Product</th><th align="right">Length</th><th align="right">Qty</th><th align="right">Subtotal</th></tr>
{{range .}}<tr><td>{{.ProductName}}{{if .Color}} ({{.Color}}){{end}}</td><td align="right">{{.Length}} m</td><td align="right">{{.Quantity}}</td><td align="right">{{money .Subtotal}}</td></tr>
{{end}}</table>{{end}}`

const orderStatusContent = `{{define "content"}}
<p>Hi {{.Order.CustomerName}},</p>
<p>Your order <strong>{{.Order.OrderNumber}}</strong> is now <strong>{{title (print .Order.Status)}}</strong>.</p>
<h3>Payment</h3>
<ul>
<li>Status: {{title (print .Order.PaymentStatus)}}</li>
{{with .Order.AmountPaid}}<li>Amount paid: {{money .}}</li>{{end}}
{{with .Order.PaymentMethod}}<li>Method: {{.}}</li>{{end}}
{{with .Order.TransactionReference}}<li>Reference: {{.}}</li>{{end}}
{{with .Order.PaymentDate}}<li>Date: {{.String}}</li>{{end}}
{{with .Order.PaymentNotes}}<li>Notes: {{.}}</li>{{end}}
</ul>
{{template "items" .Order.Items}}
<p><strong>Total: {{money .Order.TotalAmount}}</strong></p>
{{end}}`

const orderReceivedContent = `{{define "content"}}
<p>Hi {{.Order.CustomerName}},</p>
<p>Thanks for your order. Your order number is <strong>{{.Order.OrderNumber}}</strong>.
We will be in touch shortly to confirm details and arrange payment.</p>
{{template "items" .Order.Items}}
<p><strong>Total: {{money .Order.TotalAmount}}</strong></p>
{{end}}`

const newOrderContent = `{{define "content"}}
<p>New order <strong>{{.Order.OrderNumber}}</strong></p>
<ul>
<li>Name: {{.Order.CustomerName}}</li>
<li>Email: {{.Order.CustomerEmail}}</li>
<li>Phone: {{.Order.CustomerPhone}}</li>
{{with .Order.Address}}<li>Address: {{.}}{{with $.Order.City}}, {{.}}{{end}}{{with $.Order.PostalCode}} {{.}}{{end}}</li>{{end}}
{{with .Order.Notes}}<li>Notes: {{.}}</li>{{end}}
</ul>
{{template "items" .Order.Items}}
<p><strong>Total: {{money .Order.TotalAmount}}</strong></p>
{{end}}`

const newInquiryContent = `{{define "content"}}
<p>New {{.Inquiry.Service}} inquiry from <strong>{{.Inquiry.FullName}}</strong></p>
<ul>
<li>Email: {{.Inquiry.Email}}</li>
{{with .Inquiry.Phone}}<li>Phone: {{.}}</li>{{end}}
</ul>
<p style="white-space:pre-wrap">{{.Inquiry.Message}}</p>
{{end}}`

var (
	orderStatusTmpl   = mustParse("order_status", orderStatusContent)
	orderReceivedTmpl = mustParse("order_received", orderReceivedContent)
	newOrderTmpl      = mustParse("new_order", newOrderContent)
	newInquiryTmpl    = mustParse("new_inquiry", newInquiryContent)
)

func mustParse(name, content string) *template.Template {
	t := template.Must(template.New(name).Funcs(funcs).Parse(layout))
	return template.Must(t.Parse(content))
}

type templateData struct {
	Site    config.SiteConfig
	Order   *models.Order
	Inquiry *models.Inquiry
}

// StatusTitle turns a status value such as "shipped" into "Shipped"
func StatusTitle(status string) string {
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer

	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}

	return buf.String(), nil
}

// OrderStatusEmail builds the customer status/payment summary for an updated order
func OrderStatusEmail(site config.SiteConfig, order *models.Order) (Email, error) {
	html, err := render(orderStatusTmpl, templateData{Site: site, Order: order})

	if err != nil {
		return Email{}, err
	}

	return Email{
		To:      []string{order.CustomerEmail},
		Subject: fmt.Sprintf("Order %s – %s", order.OrderNumber, StatusTitle(string(order.Status))),
		HTML:    html,
	}, nil
}

// OrderReceivedEmail builds the customer confirmation for a new order
func OrderReceivedEmail(site config.SiteConfig, order *models.Order) (Email, error) {
	html, err := render(orderReceivedTmpl, templateData{Site: site, Order: order})

	if err != nil {
		return Email{}, err
	}

	return Email{
		To:      []string{order.CustomerEmail},
		Subject: fmt.Sprintf("We received your order %s", order.OrderNumber),
		HTML:    html,
	}, nil
}

// NewOrderEmail builds the admin notification for a new order
func NewOrderEmail(site config.SiteConfig, order *models.Order, to []string) (Email, error) {
	html, err := render(newOrderTmpl, templateData{Site: site, Order: order})

	if err != nil {
		return Email{}, err
	}

	return Email{
		To:      to,
		Subject: fmt.Sprintf("New order %s from %s", order.OrderNumber, order.CustomerName),
		HTML:    html,
	}, nil
}

// NewInquiryEmail builds the admin notification for a contact inquiry
func NewInquiryEmail(site config.SiteConfig, inquiry *models.Inquiry, to []string) (Email, error) {
	html, err := render(newInquiryTmpl, templateData{Site: site, Inquiry: inquiry})

	if err != nil {
		return Email{}, err
	}

	return Email{
		To:      to,
		Subject: fmt.Sprintf("New %s inquiry from %s", inquiry.Service, inquiry.FullName()),
		HTML:    html,
	}, nil
}
