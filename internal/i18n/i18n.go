// Package i18n selects message printers for API responses and CLI output.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language.
var DefaultLang = language.English

// SupportedLangs are the languages with a message catalog.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best supported language for an Accept-Language
// header value.
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	return base(tag)
}

// base strips the -u-rg extension the matcher adds for regional variants so
// catalog lookups hit the plain language entry.
func base(tag language.Tag) language.Tag {
	b, _ := tag.Base()
	t, err := language.Compose(b)
	if err != nil {
		return DefaultLang
	}
	return t
}

// NewPrinter returns a message printer for the given language.
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// WithPrinter returns a new context with the printer injected.
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one.
func GetPrinter(ctx context.Context) *message.Printer {
	p, ok := ctx.Value(printerKey).(*message.Printer)
	if !ok {
		return message.NewPrinter(DefaultLang)
	}
	return p
}

// NewCLIPrinter returns a printer for the locale in LC_ALL or LANG.
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return message.NewPrinter(DefaultLang)
	}

	// en_US.UTF-8 -> en_US
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}

	tag, err := language.Parse(lang)
	if err != nil {
		return message.NewPrinter(MatchLanguage(lang))
	}
	tag, _, _ = matcher.Match(tag)
	return message.NewPrinter(base(tag))
}
