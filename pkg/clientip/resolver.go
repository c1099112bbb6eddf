package clientip

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

const (
	ForwardedForHeader = "X-Forwarded-For"
	RealIPHeader       = "X-Real-IP"
)

type Options struct {
	// TrustForwardHeader enables X-Forwarded-For.
	TrustForwardHeader bool
	// CountFromStart picks Index counting from the originating client end of
	// the chain instead of the nearest proxy.
	CountFromStart bool
	// Index is 1-based. Values below 1 are treated as 1.
	Index int
}

// Resolver derives the caller address of a request.
type Resolver struct {
	opts   Options
	logger *slog.Logger
}

func NewResolver(opts Options, logger *slog.Logger) *Resolver {
	if opts.Index < 1 {
		opts.Index = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{opts: opts, logger: logger}
}

// Resolve returns the client address, or "" when no source carries one.
// Order: X-Forwarded-For (when trusted), X-Real-IP, then the peer address.
func (r *Resolver) Resolve(req *http.Request) string {
	if r.opts.TrustForwardHeader {
		if ip := r.fromForwardedFor(req.Header.Values(ForwardedForHeader)); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(req.Header.Get(RealIPHeader)); ip != "" {
		return ip
	}
	return peerHost(req.RemoteAddr)
}

func (r *Resolver) fromForwardedFor(values []string) string {
	var chain []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				chain = append(chain, part)
			}
		}
	}
	if len(chain) == 0 {
		return ""
	}

	idx := r.opts.Index
	if idx > len(chain) {
		r.logger.Warn("Forwarded-for index exceeds chain length, clamping",
			"index", idx, "length", len(chain))
		idx = len(chain)
	}

	if r.opts.CountFromStart {
		return chain[idx-1]
	}
	return chain[len(chain)-idx]
}

func peerHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.Trim(remoteAddr, "[]")
	}
	return host
}
