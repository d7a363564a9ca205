package middleware

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// supportedLocales lists the languages customer-facing copy exists in. The
// first entry is the fallback.
var supportedLocales = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
	language.German,
	language.BrazilianPortuguese,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// Locale negotiates the response language from the Accept-Language header
// and advertises it via Content-Language.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tag := negotiateLocale(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", tag.String())
		next.ServeHTTP(w, r)
	})
}

func negotiateLocale(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supportedLocales[0]
	}
	tag, _, _ := localeMatcher.Match(tags...)
	// Matcher may return an extended tag; collapse to the supported base.
	base, _ := tag.Base()
	for _, s := range supportedLocales {
		if sb, _ := s.Base(); sb == base {
			return s
		}
	}
	return supportedLocales[0]
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
