package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Napageneral/onboard/internal/backboard"
	"github.com/Napageneral/onboard/internal/logutil"
)

// Name and description given to the assistant created for every new client.
const (
	AssistantName        = "Test Assistant"
	AssistantDescription = "An assistant designed to understand your code"
)

// Encrypter protects API keys at rest.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// AssistantCreator creates a remote assistant.
type AssistantCreator interface {
	CreateAssistant(ctx context.Context, name, description string) (*backboard.Assistant, error)
}

// Provisioner registers new clients: it stores the encrypted key and creates
// and records the client's assistant.
type Provisioner struct {
	Registry   *Registry
	Cipher     Encrypter
	Assistants func(apiKey string) AssistantCreator
	Logger     *slog.Logger
}

// Provision registers clientID. It returns ErrExists when the id is taken. If
// the assistant cannot be created the stored client is removed again.
func (p *Provisioner) Provision(ctx context.Context, clientID, apiKey string) (ClientSummary, error) {
	clientID = strings.TrimSpace(clientID)
	apiKey = strings.TrimSpace(apiKey)
	if clientID == "" || apiKey == "" {
		return ClientSummary{}, errors.New("clients: client id and api key are required")
	}
	if p.Cipher == nil {
		return ClientSummary{}, errors.New("clients: no encryption key configured")
	}
	existing, err := p.Registry.LookupClient(ctx, clientID)
	if err != nil {
		return ClientSummary{}, err
	}
	if existing != nil {
		return ClientSummary{}, fmt.Errorf("%w: %s", ErrExists, clientID)
	}

	encrypted, err := p.Cipher.Encrypt(apiKey)
	if err != nil {
		return ClientSummary{}, fmt.Errorf("clients: encrypt key: %w", err)
	}
	if err := p.Registry.CreateClient(ctx, clientID, encrypted); err != nil {
		return ClientSummary{}, err
	}

	assistant, err := p.Assistants(apiKey).CreateAssistant(ctx, AssistantName, AssistantDescription)
	if err == nil {
		err = p.Registry.CreateAssistant(ctx, assistant.AssistantID, clientID)
	}
	if err != nil {
		if rbErr := p.Registry.DeleteClient(ctx, clientID); rbErr != nil {
			logutil.OrDefault(p.Logger).Error("rollback client failed", "client_id", clientID, "error", rbErr)
		}
		return ClientSummary{}, fmt.Errorf("clients: create assistant for %s: %w", clientID, err)
	}

	logutil.OrDefault(p.Logger).Info("client registered", "client_id", clientID, "assistant_id", assistant.AssistantID)
	created, err := p.Registry.LookupClient(ctx, clientID)
	if err != nil || created == nil {
		return ClientSummary{ClientID: clientID, AssistantID: assistant.AssistantID}, err
	}
	return ClientSummary{ClientID: clientID, AssistantID: assistant.AssistantID, CreatedAt: created.CreatedAt}, nil
}

// BackboardAssistants returns an AssistantCreator factory for baseURL.
func BackboardAssistants(baseURL string) func(apiKey string) AssistantCreator {
	return func(apiKey string) AssistantCreator {
		return backboard.NewClient(baseURL, apiKey, nil)
	}
}
