package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/transports"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound calls that get bridged into the media-stream
// endpoint, typically to dial the service into a meeting.
type Dialer struct {
	cfg    Config
	client callCreator
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg.withDefaults()}
}

// Dial places an outbound call. The url defaults to this service's
// voice webhook so the answered call is bridged straight back into the
// stream endpoint.
func (d *Dialer) Dial(ctx context.Context, to, from, url string) (string, error) {
	return d.DialWithOptions(ctx, to, from, url, transports.DialOptions{})
}

func (d *Dialer) DialWithOptions(ctx context.Context, to, from, url string, opts transports.DialOptions) (string, error) {
	_ = ctx
	if to == "" || from == "" {
		return "", errors.New("to/from required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing twilio credentials")
	}
	if url == "" {
		url = d.voiceWebhookURL()
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(url)
	if strings.TrimSpace(opts.SendDigits) != "" {
		params.SetSendDigits(opts.SendDigits)
	}
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonDialFailed)
	}
	if resp == nil || resp.Sid == nil {
		return "", errorsx.Wrap(fmt.Errorf("missing call sid"), errorsx.ReasonDialFailed)
	}
	return *resp.Sid, nil
}

func (d *Dialer) voiceWebhookURL() string {
	if d.cfg.PublicURL != "" {
		return "https://" + normalizePublicURL(d.cfg.PublicURL) + d.cfg.VoicePath
	}
	addr := d.cfg.ServerAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + d.cfg.VoicePath
}
