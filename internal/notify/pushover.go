package notify

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PushoverConfig configuração do notifier Pushover
type PushoverConfig struct {
	APIURL   string        // default: https://api.pushover.net/1/messages.json
	UserKey  string
	Token    string
	Cooldown time.Duration // Janela mínima entre notificações iguais (default: 60s)
}

// Pushover notifier via Pushover
// Notificação é best-effort: falha vira log, nunca erro para o chamador.
// Mensagens com o mesmo título dentro do cooldown são descartadas para
// não inundar o celular de quem está de plantão
type Pushover struct {
	config     PushoverConfig
	httpClient *http.Client

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewPushover cria o notifier
func NewPushover(config PushoverConfig) *Pushover {
	if config.APIURL == "" {
		config.APIURL = "https://api.pushover.net/1/messages.json"
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 60 * time.Second
	}

	return &Pushover{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		lastSent:   make(map[string]time.Time),
	}
}

// Notify envia uma notificação push
func (p *Pushover) Notify(ctx context.Context, title, message string, priority int) {
	if p.config.UserKey == "" || p.config.Token == "" {
		return
	}

	p.mu.Lock()
	if last, ok := p.lastSent[title]; ok && time.Since(last) < p.config.Cooldown {
		p.mu.Unlock()
		log.Debug().
			Str("title", title).
			Msg("Notificação suprimida por cooldown")
		return
	}
	p.lastSent[title] = time.Now()
	p.mu.Unlock()

	form := url.Values{
		"token":    {p.config.Token},
		"user":     {p.config.UserKey},
		"title":    {title},
		"message":  {message},
		"priority": {strconv.Itoa(priority)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		log.Warn().Err(err).Msg("Falha ao montar notificação")
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Falha ao enviar notificação")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("title", title).
			Msg("Pushover recusou a notificação")
		return
	}

	log.Debug().Str("title", title).Msg("Notificação enviada")
}

// Noop notifier que não faz nada (modo monitor ou Pushover desabilitado)
type Noop struct{}

// Notify descarta a notificação
func (Noop) Notify(ctx context.Context, title, message string, priority int) {}
