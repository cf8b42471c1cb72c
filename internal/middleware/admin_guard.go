package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminGuard restricts admin routes to loopback callers, configured networks and an optional token
type AdminGuard struct {
	logger   *logrus.Logger
	networks []*net.IPNet
	token    string
}

// NewAdminGuard parses allowed entries once. Plain IPs become single-host networks;
// unparsable entries are logged and ignored.
func NewAdminGuard(logger *logrus.Logger, allowed []string, token string) *AdminGuard {
	g := &AdminGuard{logger: logger, token: token}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if network := parseAllowedEntry(entry); network != nil {
			g.networks = append(g.networks, network)
			continue
		}
		logger.WithField("entry", entry).Warn("⚠️ Ignoring invalid admin.allowedIPs entry")
	}
	return g
}

func parseAllowedEntry(entry string) *net.IPNet {
	if strings.Contains(entry, "/") {
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil
		}
		return network
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return nil
	}
	bits := 128
	if v4 := ip.To4(); v4 != nil {
		ip, bits = v4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
}

// Handler gin middleware enforcing the address check, then the token check
func (g *AdminGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"client_ip": c.ClientIP(),
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		}

		if !g.callerAllowed(c) {
			g.logger.WithFields(fields).WithField("remote_addr", c.Request.RemoteAddr).Warn("🚫 Admin API rejected caller address")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "This API is only accessible from allowed IP addresses",
				"code":    "IP_NOT_ALLOWED",
			})
			return
		}

		if g.token != "" && !g.tokenMatches(presentedToken(c)) {
			g.logger.WithFields(fields).Warn("🚫 Admin API rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid admin token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		g.logger.WithFields(fields).Debug("Admin access granted")
		c.Next()
	}
}

// callerAllowed checks gin's client IP, then the raw socket peer.
// A loopback peer is trusted even when a proxy header says otherwise.
func (g *AdminGuard) callerAllowed(c *gin.Context) bool {
	if g.allows(net.ParseIP(c.ClientIP())) {
		return true
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		host = c.Request.RemoteAddr
	}
	peer := net.ParseIP(host)
	return peer != nil && peer.IsLoopback()
}

func (g *AdminGuard) allows(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	for _, network := range g.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// presentedToken "Authorization: Bearer <token>" wins over X-Admin-Token
func presentedToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.GetHeader("X-Admin-Token")
}

func (g *AdminGuard) tokenMatches(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) == 1
}
