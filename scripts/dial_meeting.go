// Command dial_meeting places an outbound call that bridges a meeting
// line into the running transcription service. DTMF digits can be sent
// after connect to enter a conference PIN.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/strombecks/earshot/pkg/configutil"
	"github.com/strombecks/earshot/pkg/earshot"
	"github.com/strombecks/earshot/pkg/transports"
	twiliotransport "github.com/strombecks/earshot/pkg/transports/twilio"
)

func main() {
	configPath := flag.String("config", "config.yaml", "")
	from := flag.String("from", "", "")
	to := flag.String("to", "", "")
	voiceURL := flag.String("voice_url", "", "")
	sendDigits := flag.String("send_digits", "", "")
	flag.Parse()
	if *from == "" || *to == "" {
		fmt.Println("usage: dial_meeting -from=+123 -to=+456 [-send_digits=ww1234#] [-config=...]")
		os.Exit(1)
	}

	cfg, err := earshot.LoadConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	var settings twiliotransport.Config
	if err := configutil.DecodeSettings(cfg.Transports.Settings, &settings); err != nil {
		fmt.Println("settings error:", err)
		os.Exit(1)
	}

	dialer := twiliotransport.NewDialer(settings)
	opts := transports.DialOptions{SendDigits: *sendDigits}
	sid, err := dialer.DialWithOptions(context.Background(), *to, *from, *voiceURL, opts)
	if err != nil {
		fmt.Println("dial error:", err)
		os.Exit(1)
	}
	fmt.Println("call placed:", sid)
}
