package metrics

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Locale selects dashboard labels. Unknown locales fall back to English.
type Locale string

const (
	LocaleEN Locale = "en"
	LocaleES Locale = "es"
)

// ParseLocale accepts "en", "es" and region forms such as "es-ES".
func ParseLocale(s string) Locale {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, string(LocaleES)) {
		return LocaleES
	}
	return LocaleEN
}

func (l Locale) tag() language.Tag {
	if l == LocaleES {
		return language.MustParse("es-ES")
	}
	return language.AmericanEnglish
}

type labels struct {
	hoursShort   string
	minutesShort string
	weekdays     [7]string
	months       [12]string
	// dayLabel renders weekday, month and day-of-month.
	dayLabel func(weekday, month string, day int) string
}

var localeLabels = map[Locale]labels{
	LocaleEN: {
		hoursShort:   "h",
		minutesShort: "m",
		weekdays:     [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
		months:       [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
		dayLabel: func(weekday, month string, day int) string {
			return fmt.Sprintf("%s, %s %d", weekday, month, day)
		},
	},
	LocaleES: {
		hoursShort:   "h",
		minutesShort: "m",
		weekdays:     [7]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"},
		months:       [12]string{"ene", "feb", "mar", "abr", "may", "jun", "jul", "ago", "sept", "oct", "nov", "dic"},
		dayLabel: func(weekday, month string, day int) string {
			return fmt.Sprintf("%s, %d %s", weekday, day, month)
		},
	},
}

func labelsFor(l Locale) labels {
	if lb, ok := localeLabels[l]; ok {
		return lb
	}
	return localeLabels[LocaleEN]
}

func (lb labels) formatDay(t time.Time) string {
	return lb.dayLabel(lb.weekdays[t.Weekday()], lb.months[t.Month()-1], t.Day())
}
