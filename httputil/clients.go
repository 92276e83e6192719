package httputil

import (
	"log"
	"net/http"
	"net/url"
	"time"
)

const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Clients struct {
	API   *http.Client // direct, for the actor host
	Probe *http.Client // optionally proxied, no redirects, for apply-URL checks
}

func NewClients(proxyURL string) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
			log.Printf("Probe client using proxy: %s", parsed.Host)
		} else {
			log.Printf("Ignoring invalid proxy URL: %v", err)
		}
	}

	probe := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		API:   &http.Client{Timeout: 60 * time.Second},
		Probe: probe,
	}
}
