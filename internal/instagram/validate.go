package instagram

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"instagram-automation/internal/apperr"
)

// ValidateMediaURL rejects URLs the platform servers cannot fetch.
func ValidateMediaURL(raw string) error {
	const op = "validate media url"

	if strings.TrimSpace(raw) == "" {
		return apperr.New(apperr.KindUnreachableMedia, op, "image URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return apperr.Newf(apperr.KindUnreachableMedia, op,
			"image URL %q must be a valid HTTP/HTTPS URL accessible by Instagram", raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return apperr.Newf(apperr.KindUnreachableMedia, op,
			"Instagram cannot access localhost URLs (%s); upload the image to public storage or use a tunnel", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return apperr.Newf(apperr.KindUnreachableMedia, op,
				"Instagram cannot access private network address %s", host)
		}
		return nil
	}

	if !strings.Contains(host, ".") {
		return apperr.Newf(apperr.KindUnreachableMedia, op,
			"image URL host %q is not a public domain name", host)
	}
	return nil
}

var instagramIDPattern = regexp.MustCompile(`^\d{15,20}$`)

// ValidateCredentials checks the shape of a real account id and token.
func ValidateCredentials(accountID, token string) error {
	const op = "validate credentials"

	if !strings.HasPrefix(token, "EAA") || len(token) < 50 {
		return apperr.Validation(op, "invalid access token format, expected a long-lived Graph API token starting with EAA")
	}
	if !instagramIDPattern.MatchString(accountID) {
		return apperr.Validation(op, "invalid Instagram account id, expected 15 to 20 digits")
	}
	return nil
}
