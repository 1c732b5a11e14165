package email

import (
	"context"
	"testing"

	"github.com/smallbiznis/collecta/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDisabled_SurfacesNotConfigured(t *testing.T) {
	err := Disabled{}.Send(context.Background(), []string{"carla@example.com"}, "subject", "body")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewFromConfig_DisablesWithoutTransport(t *testing.T) {
	log := zap.NewNop()

	provider := NewFromConfig(config.Config{SMTPFrom: "collecta@example.com"}, log)
	assert.IsType(t, Disabled{}, provider)

	provider = NewFromConfig(config.Config{SMTPHost: "relay.example.com"}, log)
	assert.IsType(t, Disabled{}, provider)

	provider = NewFromConfig(config.Config{
		SMTPHost: "relay.example.com",
		SMTPPort: 25,
		SMTPFrom: "collecta@example.com",
	}, log)
	assert.IsType(t, &SMTPProvider{}, provider)
}

func TestSMTP_RejectsEmptyRecipients(t *testing.T) {
	provider := NewSMTP(Config{Host: "relay.example.com", Port: 25, From: "collecta@example.com"})
	err := provider.Send(context.Background(), nil, "subject", "body")
	assert.Error(t, err)
}
