// Package relay forwards text to a client's Backboard assistant with memory
// capture enabled. It is shared by the Drive poller, the message endpoints and
// the upload path.
package relay

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Napageneral/onboard/internal/backboard"
	"github.com/Napageneral/onboard/internal/clients"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/memory"
)

// CredentialStore resolves clients and their assistants.
type CredentialStore interface {
	LookupClient(ctx context.Context, clientID string) (*clients.Client, error)
	LookupAssistant(ctx context.Context, clientID string) (*clients.Assistant, error)
}

// Decrypter turns a stored key back into plaintext.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// Session is a remote backend session bound to one API key.
type Session interface {
	CreateThread(ctx context.Context, assistantID string) (*backboard.Thread, error)
	AddMessage(ctx context.Context, threadID, content, memoryMode string) (*backboard.Stream, error)
	ListMemories(ctx context.Context, assistantID string) ([]memory.Entry, error)
}

// SessionFactory opens a session for a decrypted API key.
type SessionFactory func(apiKey string) Session

// BackboardSessions returns a factory producing HTTP clients against baseURL.
func BackboardSessions(baseURL string) SessionFactory {
	return func(apiKey string) Session {
		return backboard.NewClient(baseURL, apiKey, nil)
	}
}

// Reply is the outcome of a successful forward.
type Reply struct {
	AssistantID string
	ThreadID    string
	Content     string
}

// Forwarder submits text to the backend memory store on behalf of a client.
type Forwarder struct {
	creds    CredentialStore
	cipher   Decrypter
	sessions SessionFactory
	logger   *slog.Logger
}

func NewForwarder(creds CredentialStore, cipher Decrypter, sessions SessionFactory, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		creds:    creds,
		cipher:   cipher,
		sessions: sessions,
		logger:   logutil.OrDefault(logger),
	}
}

// Forward submits text and returns the concatenated content of the streamed reply.
// An empty assistantID uses the assistant registered for the client.
func (f *Forwarder) Forward(ctx context.Context, clientID, assistantID, text string) (string, error) {
	reply, err := f.Submit(ctx, clientID, assistantID, text)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// Submit is Forward with the resolved assistant and thread ids.
func (f *Forwarder) Submit(ctx context.Context, clientID, assistantID, text string) (Reply, error) {
	session, err := f.Session(ctx, clientID)
	if err != nil {
		return Reply{}, err
	}
	if assistantID == "" {
		assistantID, err = f.ResolveAssistant(ctx, clientID)
		if err != nil {
			return Reply{}, err
		}
	}

	thread, err := session.CreateThread(ctx, assistantID)
	if err != nil {
		return Reply{}, &Error{Kind: KindRemote, ClientID: clientID, Op: "create thread", Err: err}
	}

	stream, err := session.AddMessage(ctx, thread.ThreadID, text, backboard.MemoryAuto)
	if err != nil {
		return Reply{}, &Error{Kind: KindRemote, ClientID: clientID, Op: "add message", Err: err}
	}
	defer stream.Close()

	content, err := backboard.CollectContent(stream)
	if err != nil {
		return Reply{}, &Error{Kind: KindRemote, ClientID: clientID, Op: "read stream", Err: err}
	}

	f.logger.Debug("forwarded to backend",
		"client_id", clientID,
		"assistant_id", assistantID,
		"thread_id", thread.ThreadID,
		"chars", len(text),
	)
	return Reply{AssistantID: assistantID, ThreadID: thread.ThreadID, Content: content}, nil
}

// Session resolves and decrypts the client's credential and opens a backend session.
func (f *Forwarder) Session(ctx context.Context, clientID string) (Session, error) {
	client, err := f.creds.LookupClient(ctx, clientID)
	if err != nil {
		return nil, &Error{Kind: KindStore, ClientID: clientID, Op: "lookup client", Err: err}
	}
	if client == nil {
		return nil, &Error{Kind: KindUnknownClient, ClientID: clientID, Op: "lookup client"}
	}
	if f.cipher == nil {
		return nil, &Error{Kind: KindConfig, ClientID: clientID, Op: "decrypt key", Err: errNoCipher}
	}
	apiKey, err := f.cipher.Decrypt(client.APIKey)
	if err != nil {
		return nil, &Error{Kind: KindConfig, ClientID: clientID, Op: "decrypt key", Err: err}
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, &Error{Kind: KindConfig, ClientID: clientID, Op: "decrypt key", Err: errEmptyKey}
	}
	return f.sessions(apiKey), nil
}

// ResolveAssistant returns the assistant registered for the client.
func (f *Forwarder) ResolveAssistant(ctx context.Context, clientID string) (string, error) {
	assistant, err := f.creds.LookupAssistant(ctx, clientID)
	if err != nil {
		return "", &Error{Kind: KindStore, ClientID: clientID, Op: "lookup assistant", Err: err}
	}
	if assistant == nil {
		return "", &Error{Kind: KindConfig, ClientID: clientID, Op: "lookup assistant", Err: errNoAssistant}
	}
	return assistant.ID, nil
}
