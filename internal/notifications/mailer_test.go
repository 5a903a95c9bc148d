package notifications

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educatory/backend/pkg/queue"
)

func TestBuildMessage(t *testing.T) {
	cfg := SMTPConfig{FromAddress: "noreply@example.com", FromName: "Educatory"}
	msg := buildMessage(cfg, queue.EmailPayload{
		RecipientEmail: "asha@example.com",
		CC:             []string{"admin@example.com"},
		Subject:        "Registration Completed Successfully",
		BodyHTML:       "<p>done</p>",
		Attachments: []queue.EmailAttachment{
			{Filename: "enrollment.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
			{Filename: CouponImageName, ContentType: "image/png", Content: []byte("png"), Inline: true},
		},
	})

	assert.Equal(t, []string{"asha@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"admin@example.com"}, msg.GetHeader("Cc"))

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, `filename="enrollment.pdf"`)
	assert.Contains(t, raw, "Content-ID: <"+CouponImageName+">")
	assert.Contains(t, raw, "Educatory")
}
