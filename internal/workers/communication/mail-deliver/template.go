// internal/workers/communication/mail-deliver/template.go
package maildeliver

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	apperrors "request-workers/internal/common/errors"
	"request-workers/internal/models"
)

type mailTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

const newRequestText = `A new request has been created.
{{with .requestData.title}}
Title: {{.}}
{{end}}
View it at {{.link}}
`

const newRequestHTML = `<p>A new request has been created.</p>
{{with .requestData.title}}<p>Title: {{.}}</p>
{{end}}<p><a href="{{.link}}">View request</a></p>
`

// Renderer expands mail templates by name.
type Renderer struct {
	templates map[string]mailTemplate
}

func NewRenderer() *Renderer {
	return &Renderer{
		templates: map[string]mailTemplate{
			models.TemplateNewRequest: {
				subject: "New request received",
				text:    texttemplate.Must(texttemplate.New("new-request.txt").Parse(newRequestText)),
				html:    htmltemplate.Must(htmltemplate.New("new-request.html").Parse(newRequestHTML)),
			},
		},
	}
}

// Render expands tmpl. The data gains a "link" entry pointing at the
// request on the project domain.
func (r *Renderer) Render(tmpl models.MailTemplate) (*RenderedEmail, error) {
	t, ok := r.templates[tmpl.Name]
	if !ok {
		return nil, apperrors.NewTemplateNotFoundError(tmpl.Name)
	}

	data := make(map[string]interface{}, len(tmpl.Data)+1)
	for k, v := range tmpl.Data {
		data[k] = v
	}
	data["link"] = requestLink(tmpl.Data)

	var text, html bytes.Buffer
	if err := t.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("render %s text: %w", tmpl.Name, err)
	}
	if err := t.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("render %s html: %w", tmpl.Name, err)
	}

	return &RenderedEmail{
		Subject: t.subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func requestLink(data map[string]interface{}) string {
	domain, _ := data["projectDomain"].(string)
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}

	var id string
	if req, ok := data["requestData"].(map[string]interface{}); ok {
		id, _ = req["id"].(string)
	}
	return strings.TrimSuffix(domain, "/") + "/requests/" + id
}
