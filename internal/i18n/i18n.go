// Package i18n renders user-facing texts in the user's language.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/soyeahso/chatconn/internal/domain"
)

var reasonKeys = map[domain.Reason]string{
	domain.ReasonOnlyInGroups:         KeyOnlyInGroups,
	domain.ReasonNotInChat:            KeyNotInChat,
	domain.ReasonMustBeAdmin:          KeyShouldBeAdmin,
	domain.ReasonConnectionNotAllowed: KeyConnNotAllowed,
}

// Catalog holds the translations and picks the closest supported language
// for a Telegram language code.
type Catalog struct {
	cat      *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
	fallback language.Tag
}

// New builds the catalog. defaultLang is used when a user's language is
// unknown or unsupported.
func New(defaultLang string) (*Catalog, error) {
	fallback, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("parsing default language %q: %w", defaultLang, err)
	}

	// The fallback goes first so the matcher prefers it on a miss.
	tags := []language.Tag{language.English, language.Russian, language.Spanish}
	base, _ := fallback.Base()
	for i, t := range tags {
		if b, _ := t.Base(); b == base {
			tags[0], tags[i] = tags[i], tags[0]
			break
		}
	}
	if b, _ := tags[0].Base(); b != base {
		return nil, fmt.Errorf("default language %q has no translations", defaultLang)
	}

	b := catalog.NewBuilder(catalog.Fallback(tags[0]))
	for tag, msgs := range messages {
		for key, text := range msgs {
			if err := b.SetString(tag, key, text); err != nil {
				return nil, fmt.Errorf("adding %s/%s: %w", tag, key, err)
			}
		}
	}

	return &Catalog{cat: b, tags: tags, matcher: language.NewMatcher(tags), fallback: tags[0]}, nil
}

// Match returns the supported language closest to code.
func (c *Catalog) Match(code string) language.Tag {
	if code == "" {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(language.Make(code))
	if conf == language.No {
		return c.fallback
	}
	return c.tags[idx]
}

// Text formats the message key in the language closest to code.
func (c *Catalog) Text(code, key string, args ...any) string {
	p := message.NewPrinter(c.Match(code), message.Catalog(c.cat))
	return p.Sprintf(key, args...)
}

// Refusal returns the localized text for a refusal reason. Unknown reasons
// are returned verbatim.
func (c *Catalog) Refusal(code string, r domain.Reason) string {
	key, ok := reasonKeys[r]
	if !ok {
		return string(r)
	}
	return c.Text(code, key)
}

// Languages lists the supported languages, default first.
func (c *Catalog) Languages() []string {
	out := make([]string, len(c.tags))
	for i, t := range c.tags {
		out[i] = t.String()
	}
	return out
}
