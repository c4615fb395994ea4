package azure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/rs/zerolog/log"
)

// Credentials credenciais de service principal para a API de management
type Credentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// tokenProvider cacheia o token AAD até perto de expirar
type tokenProvider struct {
	credential *azidentity.ClientSecretCredential

	mu    sync.Mutex
	token azcore.AccessToken
}

func newTokenProvider(creds Credentials) (*tokenProvider, error) {
	if creds.TenantID == "" || creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("credenciais Azure incompletas")
	}

	credential, err := azidentity.NewClientSecretCredential(
		creds.TenantID, creds.ClientID, creds.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	return &tokenProvider{credential: credential}, nil
}

// Token retorna um token válido para management.azure.com
func (p *tokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Renova com 5 minutos de folga
	if p.token.Token != "" && time.Until(p.token.ExpiresOn) > 5*time.Minute {
		return p.token.Token, nil
	}

	token, err := p.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{"https://management.azure.com/.default"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to acquire token: %w", err)
	}

	p.token = token
	log.Debug().
		Time("expires_on", token.ExpiresOn).
		Msg("Token Azure renovado")

	return token.Token, nil
}
