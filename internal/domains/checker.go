// Package domains matches sender addresses against a configured domain list.
package domains

import (
	"strings"

	"github.com/mikey/mail-labeler/internal/utils"
	"go.uber.org/zap"
)

// Checker reports whether a sender belongs to one of a set of domains.
// A listed domain also matches its subdomains.
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a checker for domains (case-insensitive)
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	set := make(map[string]struct{}, len(domains))
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.Trim(strings.ToLower(strings.TrimSpace(d)), ".")
		d = strings.TrimPrefix(d, "@")
		if d == "" {
			continue
		}
		if _, dup := set[d]; !dup {
			set[d] = struct{}{}
			normalized = append(normalized, d)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized excluded sender domains", zap.Strings("domains", normalized))
	}

	return &Checker{
		domains: set,
		logger:  logger,
	}
}

// IsExcluded implements core.SenderExcluder
func (c *Checker) IsExcluded(sender string) bool {
	if len(c.domains) == 0 {
		return false
	}
	domain := utils.SenderDomain(sender)
	for domain != "" {
		if _, ok := c.domains[domain]; ok {
			if c.logger != nil {
				c.logger.Debug("Sender domain is excluded",
					zap.String("domain", domain),
					zap.String("sender", sender))
			}
			return true
		}
		dot := strings.IndexByte(domain, '.')
		if dot < 0 {
			break
		}
		domain = domain[dot+1:]
	}
	return false
}

// Len returns the number of distinct domains
func (c *Checker) Len() int {
	return len(c.domains)
}
