package email

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/rikseotools/vence/internal/model"
)

type captureDialer struct {
	sent  []*gomail.Message
	err   error
	block chan struct{}
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.block != nil {
		<-d.block
	}
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

var user = model.User{ID: "u1", Email: "ana@example.com", Name: "Ana"}

func TestSendBuildsMessage(t *testing.T) {
	d := &captureDialer{}
	svc := NewService(d, "Vence <avisos@vence.es>")

	id, err := svc.Send(context.Background(), user, Payload{
		Subject: "Artículos a repasar",
		Body:    "Tienes 2 artículos por debajo del 70%",
		Link:    "https://vence.es/leyes/ley-39-2015/test-articulos?articulos=14",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"Artículos a repasar"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{"<" + id + "@vence.es>"}, m.GetHeader("Message-ID"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ana@example.com")
}

func TestSendWithoutAddress(t *testing.T) {
	d := &captureDialer{}
	svc := NewService(d, "avisos@vence.es")
	_, err := svc.Send(context.Background(), model.User{ID: "u2"}, Payload{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Empty(t, d.sent)
}

func TestSendWrapsDialerErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc := NewService(&captureDialer{err: boom}, "avisos@vence.es")
	_, err := svc.Send(context.Background(), user, Payload{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, boom)
}

func TestSendHonoursContext(t *testing.T) {
	d := &captureDialer{block: make(chan struct{})}
	defer close(d.block)
	svc := NewService(d, "avisos@vence.es")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Send(ctx, user, Payload{Subject: "s", Body: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTMLBodyEscapes(t *testing.T) {
	out := htmlBody(Payload{Subject: "a<b", Body: `"x" & y`, Link: "https://vence.es/?a=1&b=2"})
	assert.Contains(t, out, "a&lt;b")
	assert.Contains(t, out, "&#34;x&#34; &amp; y")
	assert.Contains(t, out, "a=1&amp;b=2")
}
