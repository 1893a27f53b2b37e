package middleware

import (
	"net"

	"github.com/labstack/echo/v4"
)

// ClientIP returns the extractor behind c.RealIP().  Without trusted
// proxies the TCP peer address is used and forwarding headers are ignored.
// With trusted proxies, X-Forwarded-For is walked from the right and the
// first hop outside those ranges is the client.  The login throttle keys
// on this address, so it must never come from a header a client controls.
func ClientIP(trusted []*net.IPNet) echo.IPExtractor {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range trusted {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
