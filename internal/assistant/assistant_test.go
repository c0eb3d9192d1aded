package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	answers  []string
	err      error
	seen     [][]Message
	messages []string
}

func (f *fakeGenerator) Generate(_ context.Context, history []Message, text string) (string, error) {
	f.seen = append(f.seen, append([]Message(nil), history...))
	f.messages = append(f.messages, text)
	if f.err != nil {
		return "", f.err
	}
	answer := f.answers[0]
	f.answers = f.answers[1:]
	return answer, nil
}

func TestSessionKeepsHistory(t *testing.T) {
	gen := &fakeGenerator{answers: []string{"¡Hola! 🥑", "Puedes seguirnos en @avotex.mx"}}
	session := New(gen, "team@example.com", nil).NewSession()

	reply, err := session.Send(testContext(t), "  Hola  ")
	require.NoError(t, err)
	assert.Equal(t, "¡Hola! 🥑", reply.Text)
	assert.Nil(t, reply.Contact)

	_, err = session.Send(testContext(t), "¿Tienen Instagram?")
	require.NoError(t, err)

	require.Len(t, gen.seen, 2)
	assert.Empty(t, gen.seen[0])
	assert.Equal(t, []Message{
		{Role: RoleUser, Text: "Hola"},
		{Role: RoleModel, Text: "¡Hola! 🥑"},
	}, gen.seen[1])
	assert.Equal(t, "Hola", gen.messages[0])
	assert.Len(t, session.History(), 4)
}

func TestContactHandOff(t *testing.T) {
	gen := &fakeGenerator{answers: []string{" ACTION:CONTACT\n"}}
	session := New(gen, "team@example.com", nil).NewSession()

	reply, err := session.Send(testContext(t), "Quiero una demo & precios")
	require.NoError(t, err)
	require.NotNil(t, reply.Contact)
	assert.NotEqual(t, ActionContact, reply.Text)
	assert.Equal(t, "team@example.com", reply.Contact.Email)
	assert.Contains(t, reply.Contact.Body, `"Quiero una demo & precios"`)
	assert.True(t, strings.HasPrefix(reply.Contact.URL, "mailto:team@example.com?subject=Consulta%20desde%20la%20App%20Avotex&body="))
	assert.NotContains(t, reply.Contact.URL, "+")
	assert.NotContains(t, strings.SplitN(reply.Contact.URL, "&body=", 2)[1], "&")

	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, reply.Text, history[1].Text)
}

func TestSendErrors(t *testing.T) {
	_, err := New(nil, "", nil).NewSession().Send(testContext(t), "hola")
	require.ErrorIs(t, err, ErrDisabled)

	gen := &fakeGenerator{answers: []string{"x"}}
	_, err = New(gen, "", nil).NewSession().Send(testContext(t), "   ")
	require.Error(t, err)
	assert.Empty(t, gen.messages)

	failing := &fakeGenerator{err: errors.New("quota exceeded")}
	session := New(failing, "", nil).NewSession()
	_, err = session.Send(testContext(t), "hola")
	require.Error(t, err)
	assert.Empty(t, session.History(), "failed turns are not recorded")
}
