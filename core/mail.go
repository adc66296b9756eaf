package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/escolar/fs"
)

var (
	templates   tmplCache
	templatesMu sync.Mutex
)

type (
	tmplCacheEntry struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}
	tmplCache map[string]*tmplCacheEntry // {name: entry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// Render fills TextContent and HTMLContent from BodyStr or the message templates.
func (m *EmailMessage) Render(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	entry, err := getTemplates(m.TemplateName, conf.Debug || conf.TestMode)
	if err != nil {
		return err
	}
	data := ContextData{
		AppName:         conf.AppName,
		FrontendBaseURL: conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}

	var buff bytes.Buffer
	if entry.text != nil && m.TextContent == "" {
		if err := entry.text.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}
	if entry.html != nil {
		buff.Reset()
		if err := entry.html.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// getTemplates parses the "<name>.txt" and "<name>.gohtml" templates along with their base layouts.
// Parsed templates are cached.
func getTemplates(name string, strict bool) (*tmplCacheEntry, error) {
	templatesMu.Lock()
	defer templatesMu.Unlock()

	if templates == nil {
		templates = make(tmplCache)
	}
	if entry, ok := templates[name]; ok {
		return entry, nil
	}

	entry := new(tmplCacheEntry)
	txtPath := path.Join(appfs.TemplatesDir, name+".txt")
	if _, err := fs.Stat(appfs.FS, txtPath); err == nil {
		tmpl, err := texttmpl.ParseFS(appfs.FS, path.Join(appfs.TemplatesDir, "_base.txt"), txtPath)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", txtPath)
		}
		if strict {
			tmpl = tmpl.Option("missingkey=error")
		}
		entry.text = tmpl
	}

	htmlPath := path.Join(appfs.TemplatesDir, name+".gohtml")
	if _, err := fs.Stat(appfs.FS, htmlPath); err == nil {
		tmpl, err := htmltmpl.ParseFS(appfs.FS, path.Join(appfs.TemplatesDir, "_base.gohtml"), htmlPath)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", htmlPath)
		}
		if strict {
			tmpl = tmpl.Option("missingkey=error")
		}
		entry.html = tmpl
	}

	if entry.text == nil && entry.html == nil {
		return nil, errors.Errorf("email template %q not found", strings.TrimSpace(name))
	}
	templates[name] = entry
	return entry, nil
}
