package emailsvc

import (
	"log"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escolar/core"
	logsvc "github.com/trezcool/escolar/services/logger"
	testutil "github.com/trezcool/escolar/tests"
)

func TestConsoleServiceMock(t *testing.T) {
	conf := testutil.NewConfig("")
	svc := NewConsoleServiceMock(conf, logsvc.NewRollbarLogger(log.Default(), conf))

	to := []mail.Address{{Name: "Tere", Address: "tere@test.mx"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "Hola", BodyStr: "plain body"},
		&core.EmailMessage{To: to, Subject: "Reset", TemplateName: "password_reset", TemplateData: map[string]interface{}{
			"Name": "Tere", "UID": "MQ", "Token": "abc-123",
		}},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "dropped"},
		&core.EmailMessage{To: to, Subject: "unknown template", TemplateName: "nope"},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "plain body", sent[0].TextContent)
	assert.Empty(t, sent[0].HTMLContent)
	assert.Contains(t, sent[1].TextContent, "http://localhost:3000/password-reset/MQ/abc-123")
	assert.Contains(t, sent[1].HTMLContent, "abc-123")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleBuild(t *testing.T) {
	conf := testutil.NewConfig("")
	svc := consoleService{conf: conf, subjPrefix: "[" + conf.AppName + "] "}

	body, err := svc.build(core.EmailMessage{
		To:          []mail.Address{{Address: "tere@test.mx"}},
		Subject:     "Hola",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Escolar] Hola\r\n")
	assert.Contains(t, body, "To: <tere@test.mx>\r\n")
	assert.Contains(t, body, "text/plain; charset=utf-8")
	assert.Contains(t, body, "<p>html</p>")
	assert.NotContains(t, body, "CC:")
}

func TestSendgridPrepare(t *testing.T) {
	conf := testutil.NewConfig("")
	svc, err := NewSendgridService(conf, nil)
	require.NoError(t, err)

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Tere", Address: "tere@test.mx"}},
		Cc:          []mail.Address{{Address: "dir@test.mx"}},
		Subject:     "Hola",
		TextContent: "text",
	})
	assert.Equal(t, "noreply@test.mx", m.From.Address)
	assert.Equal(t, "Escolar", m.From.Name)
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Escolar] Hola", m.Personalizations[0].Subject)
	assert.Len(t, m.Personalizations[0].CC, 1)
	assert.Len(t, m.Content, 1, "no html part without html content")
}
