// Package assistant implements the in-app chat helper backed by Gemini.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// ErrDisabled is returned when no model is configured.
var ErrDisabled = errors.New("assistant is not configured")

const (
	// ActionContact is the reply the model gives to hand the user over to
	// the team by e-mail.
	ActionContact = "ACTION:CONTACT"

	// FailureReply is shown when the model cannot be reached.
	FailureReply = "Error al conectarse a Gemini."

	contactReply   = "¡Claro! Esa es una consulta que el equipo de VEX puede resolver mejor. Te ayudo a enviarles un correo. 🥑"
	contactSubject = "Consulta desde la App Avotex"
)

// Role is the author of a chat message, in Gemini's vocabulary.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of a conversation.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Generator produces the model's answer to text given the prior turns.
type Generator interface {
	Generate(ctx context.Context, history []Message, text string) (string, error)
}

// Contact is a prepared e-mail to the team.
type Contact struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	URL     string `json:"url"`
}

// Reply is the assistant's answer to one message.
type Reply struct {
	Text    string   `json:"text"`
	Contact *Contact `json:"contact,omitempty"`
}

// Assistant holds what every conversation shares.
type Assistant struct {
	generator    Generator
	contactEmail string
	logger       *slog.Logger
}

// New creates an Assistant. A nil generator yields a disabled assistant.
func New(generator Generator, contactEmail string, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		generator:    generator,
		contactEmail: contactEmail,
		logger:       logger.With("component", "assistant"),
	}
}

// Enabled reports whether a model is configured.
func (a *Assistant) Enabled() bool {
	return a != nil && a.generator != nil
}

// NewSession starts an empty conversation.
func (a *Assistant) NewSession() *Session {
	return &Session{assistant: a}
}

// Session is one conversation and its history.
type Session struct {
	assistant *Assistant

	mu      sync.Mutex
	history []Message
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Send asks the model and records both turns on success.
func (s *Session) Send(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, fmt.Errorf("message is empty")
	}
	a := s.assistant
	if !a.Enabled() {
		return Reply{}, ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	answer, err := a.generator.Generate(ctx, s.history, text)
	if err != nil {
		a.logger.Error("chat request failed", "error", err)
		return Reply{}, fmt.Errorf("chat request failed: %w", err)
	}

	reply := Reply{Text: answer}
	if strings.TrimSpace(answer) == ActionContact {
		contact := a.contact(text)
		reply = Reply{Text: contactReply, Contact: &contact}
		a.logger.Debug("contact hand-off", "email", contact.Email)
	}

	s.history = append(s.history,
		Message{Role: RoleUser, Text: text},
		Message{Role: RoleModel, Text: reply.Text},
	)
	return reply, nil
}

func (a *Assistant) contact(question string) Contact {
	body := fmt.Sprintf("¡Hola, equipo de VEX! 🥑\n\nTengo la siguiente consulta:\n\n\"%s\"\n\nQuedo al pendiente,\nSaludos.", question)
	return Contact{
		Email:   a.contactEmail,
		Subject: contactSubject,
		Body:    body,
		URL:     fmt.Sprintf("mailto:%s?subject=%s&body=%s", a.contactEmail, escape(contactSubject), escape(body)),
	}
}

// escape percent-encodes like encodeURIComponent (spaces as %20).
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
