// Package i18n renders user-facing text for a key in an explicit locale.
// Lookup never drives control flow; unknown keys render as the key itself.
package i18n

import "fmt"

const fallbackLocale = "en"

type Catalog struct {
	entries map[string]map[string]string
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: map[string]map[string]string{
		"en": {
			"reminder.monthend.title":   "Month-end booking",
			"reminder.monthend.message": "Today (%s) is the last business day of the month. Book your open drafts.",
		},
		"de": {
			"reminder.monthend.title":   "Monatsabschluss",
			"reminder.monthend.message": "Heute (%s) ist der letzte Arbeitstag des Monats. Buchen Sie Ihre offenen Entwürfe.",
		},
	}}
}

// Text renders the key for the locale, falling back to English, then to the
// raw key.
func (c *Catalog) Text(locale, key string, args ...any) string {
	template := ""
	if m, ok := c.entries[locale]; ok {
		template = m[key]
	}
	if template == "" {
		template = c.entries[fallbackLocale][key]
	}
	if template == "" {
		return key
	}
	if len(args) == 0 {
		return template
	}
	return fmt.Sprintf(template, args...)
}
