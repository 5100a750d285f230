// PermitWatch - Municipal Permit Tracking and Subscriber Digest Delivery
// Copyright 2026 PermitWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/permitwatch/permitwatch

package digest

import (
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/permitwatch/permitwatch/internal/models"
)

// RenderedDigest is a cohort digest ready for dispatch.
type RenderedDigest struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the input to both digest templates.
type templateData struct {
	CityLabel      string
	WorkClassLabel string
	Date           string
	Permits        []permitView
}

// permitView flattens a permit for template consumption.
type permitView struct {
	PermitID   string
	City       string
	PermitType string
	WorkClass  string
	Location   string
	Contractor string
	Valuation  string
	IssuedDate string
}

const htmlDigestTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif; color: #222;">
<h2>Permit Digest &mdash; {{.CityLabel}} / {{.WorkClassLabel}}</h2>
<p>{{len .Permits}} new permit{{if ne (len .Permits) 1}}s{{end}} as of {{.Date}}.</p>
<table border="0" cellpadding="6" cellspacing="0" style="border-collapse: collapse; width: 100%;">
<tr style="background: #f0f0f0; text-align: left;">
<th>Permit</th><th>City</th><th>Type</th><th>Work Class</th><th>Location</th><th>Contractor</th><th>Valuation</th><th>Issued</th>
</tr>
{{range .Permits}}<tr style="border-bottom: 1px solid #ddd;">
<td>{{.PermitID}}</td><td>{{.City}}</td><td>{{.PermitType}}</td><td>{{.WorkClass}}</td><td>{{.Location}}</td><td>{{.Contractor}}</td><td>{{.Valuation}}</td><td>{{.IssuedDate}}</td>
</tr>
{{end}}</table>
<p style="color: #888; font-size: 12px;">You receive this digest because of your PermitWatch subscription.</p>
</body>
</html>
`

const textDigestTemplate = `Permit Digest - {{.CityLabel}} / {{.WorkClassLabel}}
{{len .Permits}} new permit(s) as of {{.Date}}.

{{range .Permits}}* {{.PermitID}} ({{.City}}) {{.PermitType}}{{if .WorkClass}} / {{.WorkClass}}{{end}}
{{- if .Location}}
  Location: {{.Location}}{{end}}
{{- if .Contractor}}
  Contractor: {{.Contractor}}{{end}}
{{- if .IssuedDate}}
  Issued: {{.IssuedDate}}{{end}}
{{end}}
You receive this digest because of your PermitWatch subscription.
`

var (
	htmlTmpl = template.Must(template.New("digest-html").Parse(htmlDigestTemplate))
	textTmpl = texttemplate.Must(texttemplate.New("digest-text").Parse(textDigestTemplate))
)

// Render produces the shared digest for one cohort. Every member of the
// cohort receives exactly this content.
func Render(key models.CohortKey, permits []models.Permit, now time.Time) (*RenderedDigest, error) {
	data := templateData{
		CityLabel:      key.CityFilter,
		WorkClassLabel: key.WorkClassFilter,
		Date:           now.Format("2006-01-02"),
		Permits:        make([]permitView, 0, len(permits)),
	}
	for i := range permits {
		p := &permits[i]
		view := permitView{
			PermitID:   p.PermitID,
			City:       p.City,
			PermitType: p.PermitType,
			WorkClass:  p.WorkClass,
			Location:   p.Location,
			Contractor: p.Contractor,
			Valuation:  p.ValuationAmount,
		}
		if p.IssuedDate != nil {
			view.IssuedDate = p.IssuedDate.Format("2006-01-02")
		}
		data.Permits = append(data.Permits, view)
	}

	var html strings.Builder
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML digest: %w", err)
	}
	var text strings.Builder
	if err := textTmpl.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text digest: %w", err)
	}

	return &RenderedDigest{
		Subject:  fmt.Sprintf("PermitWatch digest: %d new permits (%s / %s)", len(permits), key.CityFilter, key.WorkClassFilter),
		BodyHTML: html.String(),
		BodyText: text.String(),
	}, nil
}
