package booking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	nameRe = regexp.MustCompile(`(?i:\b(?:my name is|my name's|i am|i'm|i’m|this is|mein name ist|ich bin|hier ist|hier spricht))\s+(\p{Lu}\p{Ll}+(?:[\s-]\p{Lu}\p{Ll}+)?)`)

	phoneRe = regexp.MustCompile(`(?:\+\d{1,3}[\s\-/]?|\b0)\d{2,5}(?:[\s\-/]?\d{2,}){1,4}`)

	// "Hauptstraße 12", "Lindenweg 3a", "Berliner Straße 5", "Main Street 5", "Am Ring 3".
	// A compound needs at least three letters before the suffix and house numbers
	// stop at three digits, so "Spring 2025" is not an address.
	streetFirstRe = regexp.MustCompile(`(?:\p{Lu}[\p{L}\-]*\p{Ll}{2}(?i:straße|strasse|str\.|weg|gasse|platz|allee|ring|damm|ufer)|\p{Lu}[\p{L}\-]*\s(?:\p{Lu}[\p{L}\-]*\s)?(?i:straße|strasse|str\.|weg|gasse|platz|allee|ring|damm|ufer|street|st\.|road|avenue|lane|drive))\s+\d{1,3}\s?[a-zA-Z]?\b`)
	// "12 Main Street"
	numberFirstRe = regexp.MustCompile(`\b\d{1,4}\s+\p{Lu}[\p{L}\-]*\s(?i:street|st\.|road|avenue|lane|drive|way)\b`)

	clockRe    = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.]([0-5]\d)\b`)
	meridiemRe = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])\s?(am|pm|a\.m\.|p\.m\.)`)
	uhrRe      = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3])\s?uhr\b`)
)

type keyword struct {
	word  string
	value string
}

// wholeOnly holds short stems that are common inside unrelated words ("dachte",
// "thermometer", "türkis"); they only match as complete words.
var wholeOnly = map[string]bool{"dach": true, "tür": true, "türen": true, "therme": true}

// notAfter lists words that, directly before a keyword, change its meaning.
var notAfter = map[string][]string{"morgen": {"guten", "schönen"}}

// serviceKeywords is scanned in order; the first keyword found decides the category.
// Trades come before the generic categories so "emergency, my heater is broken" is Heating.
var serviceKeywords = []keyword{
	{"heater", "Heating"}, {"heating", "Heating"}, {"boiler", "Heating"}, {"radiator", "Heating"},
	{"heizung", "Heating"}, {"heizkörper", "Heating"}, {"therme", "Heating"},
	{"plumb", "Plumbing"}, {"leak", "Plumbing"}, {"pipe", "Plumbing"}, {"toilet", "Plumbing"},
	{"faucet", "Plumbing"}, {"drain", "Plumbing"}, {"rohr", "Plumbing"}, {"wasserhahn", "Plumbing"},
	{"abfluss", "Plumbing"}, {"sanitär", "Plumbing"}, {"undicht", "Plumbing"},
	{"electric", "Electrical"}, {"wiring", "Electrical"}, {"socket", "Electrical"}, {"fuse", "Electrical"},
	{"strom", "Electrical"}, {"steckdose", "Electrical"}, {"elektr", "Electrical"}, {"sicherung", "Electrical"},
	{"roof", "Roofing"}, {"gutter", "Roofing"},
	{"dach", "Roofing"}, {"dachrinne", "Roofing"}, {"dachdecker", "Roofing"}, {"dachziegel", "Roofing"},
	{"dachfenster", "Roofing"}, {"dachschaden", "Roofing"},
	{"paint", "Painting"}, {"maler", "Painting"}, {"streichen", "Painting"},
	{"carpent", "Carpentry"}, {"door", "Carpentry"}, {"window", "Carpentry"}, {"tischler", "Carpentry"},
	{"schreiner", "Carpentry"}, {"fenster", "Carpentry"},
	{"tür", "Carpentry"}, {"türen", "Carpentry"}, {"türschloss", "Carpentry"},
	{"floor", "Flooring"}, {"tiling", "Flooring"}, {"tiles", "Flooring"}, {"fliese", "Flooring"}, {"boden", "Flooring"},
	{"repair", "Repair"}, {"broken", "Repair"}, {"reparatur", "Repair"}, {"kaputt", "Repair"}, {"defekt", "Repair"},
	{"install", "Installation"}, {"montage", "Installation"}, {"einbau", "Installation"},
	{"maintenance", "Maintenance"}, {"inspection", "Maintenance"}, {"wartung", "Maintenance"},
	{"emergency", "Emergency"}, {"notfall", "Emergency"},
}

var urgentKeywords = []string{"emergency", "urgent", "notfall", "dringend"}

var highKeywords = []string{"rushed", "in a rush", "hurry", "asap", "eilig"}

var dateKeywords = []keyword{
	{"monday", "Monday"}, {"tuesday", "Tuesday"}, {"wednesday", "Wednesday"}, {"thursday", "Thursday"},
	{"friday", "Friday"}, {"saturday", "Saturday"}, {"sunday", "Sunday"},
	{"montag", "Montag"}, {"dienstag", "Dienstag"}, {"mittwoch", "Mittwoch"}, {"donnerstag", "Donnerstag"},
	{"freitag", "Freitag"}, {"samstag", "Samstag"}, {"sonntag", "Sonntag"},
	{"day after tomorrow", "day after tomorrow"}, {"today", "today"}, {"tomorrow", "tomorrow"},
	{"übermorgen", "übermorgen"}, {"heute", "heute"}, {"morgen", "morgen"},
}

var dayPartKeywords = []keyword{
	{"morning", "morning"}, {"afternoon", "afternoon"}, {"evening", "evening"},
	{"vormittags", "vormittags"}, {"vormittag", "vormittags"}, {"morgens", "morgens"},
	{"nachmittags", "nachmittags"}, {"nachmittag", "nachmittags"}, {"abends", "abends"},
}

// Extract applies the deterministic extraction rules to one utterance and returns
// current with every matched field overwritten. Fields without a match are untouched.
func Extract(text string, current Slots) Slots {
	out := current
	if strings.TrimSpace(text) == "" {
		return out
	}
	lower := strings.ToLower(text)

	if m := nameRe.FindStringSubmatch(text); m != nil {
		out.CustomerName = strings.TrimSpace(m[1])
	}
	if phone := matchPhone(text); phone != "" {
		out.PhoneNumber = phone
	}
	if service, ok := firstKeyword(lower, serviceKeywords, false); ok {
		out.ServiceType = service
		if strings.TrimSpace(out.Description) == "" {
			out.Description = strings.TrimSpace(text)
		}
	}
	if urgency := matchUrgency(lower); urgency != "" {
		out.Urgency = urgency
	}
	if addr := matchAddress(text); addr != "" {
		out.Address = addr
	}
	if date, ok := leftmostKeyword(lower, dateKeywords); ok {
		out.PreferredDate = date
	}
	if t := matchTime(text, lower); t != "" {
		out.PreferredTime = t
	}
	return out
}

func matchPhone(text string) string {
	for _, m := range phoneRe.FindAllString(text, -1) {
		digits := 0
		for _, r := range m {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits >= 6 {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func matchUrgency(lower string) string {
	for _, w := range urgentKeywords {
		if indexWord(lower, w, false) >= 0 {
			return UrgencyUrgent
		}
	}
	for _, w := range highKeywords {
		if indexWord(lower, w, false) >= 0 {
			return UrgencyHigh
		}
	}
	return ""
}

func matchAddress(text string) string {
	if m := streetFirstRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	if m := numberFirstRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

func matchTime(text, lower string) string {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimLeft(m[1], "0") + ":" + m[2]
	}
	if m := meridiemRe.FindStringSubmatch(text); m != nil {
		suffix := strings.ReplaceAll(strings.ToLower(m[2]), ".", "")
		return strings.TrimLeft(m[1], "0") + " " + suffix
	}
	if m := uhrRe.FindStringSubmatch(text); m != nil {
		h := strings.TrimLeft(m[1], "0")
		if h == "" {
			h = "0"
		}
		return h + ":00"
	}
	if part, ok := leftmostKeyword(lower, dayPartKeywords); ok {
		return part
	}
	return ""
}

// firstKeyword returns the value of the first table entry present in lower.
func firstKeyword(lower string, table []keyword, whole bool) (string, bool) {
	for _, k := range table {
		if indexKeyword(lower, k, whole) >= 0 {
			return k.value, true
		}
	}
	return "", false
}

// leftmostKeyword returns the value of the whole-word entry appearing earliest in lower.
func leftmostKeyword(lower string, table []keyword) (string, bool) {
	best, value := -1, ""
	for _, k := range table {
		i := indexKeyword(lower, k, true)
		if i < 0 {
			continue
		}
		if best < 0 || i < best {
			best, value = i, k.value
		}
	}
	return value, best >= 0
}

// indexKeyword finds the first occurrence of k that is not preceded by one of
// its notAfter words.
func indexKeyword(s string, k keyword, whole bool) int {
	whole = whole || wholeOnly[k.word]
	from := 0
	for {
		i := indexWordFrom(s, k.word, whole, from)
		if i < 0 || !precededBy(s[:i], notAfter[k.word]) {
			return i
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		from = i + size
	}
}

// precededBy reports whether the last word of head is one of words.
func precededBy(head string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	fields := strings.FieldsFunc(head, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]
	for _, w := range words {
		if last == w {
			return true
		}
	}
	return false
}

// indexWord finds word in s starting at a word boundary. With whole set the
// match must also end at a word boundary.
func indexWord(s, word string, whole bool) int {
	return indexWordFrom(s, word, whole, 0)
}

func indexWordFrom(s, word string, whole bool, from int) int {
	for from <= len(s) {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(s, start) && (!whole || boundaryAfter(s, end)) {
			return start
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return -1
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
