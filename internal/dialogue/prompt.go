package dialogue

import (
	"encoding/json"
	"strings"

	"github.com/chadiek/phone-assistant/internal/booking"
)

// Phrases holds the fixed lines spoken outside of model replies.
type Phrases struct {
	Greeting     string
	Fallback     string
	Confirmation string // fmt-style: customer name, service type, date/time phrase
}

var phrases = map[string]Phrases{
	"de": {
		Greeting:     "Guten Tag, Sie sprechen mit dem digitalen Assistenten. Wie kann ich Ihnen helfen?",
		Fallback:     "Entschuldigung, das habe ich nicht verstanden. Könnten Sie das bitte wiederholen?",
		Confirmation: "Vielen Dank, %s. Ihr Termin für %s ist eingetragen%s. Wir melden uns in Kürze bei Ihnen. Auf Wiederhören!",
	},
	"en": {
		Greeting:     "Hello, you are speaking with the digital assistant. How can I help you?",
		Fallback:     "Sorry, I didn't catch that. Could you please repeat it?",
		Confirmation: "Thank you, %s. Your appointment for %s has been booked%s. We will be in touch shortly. Goodbye!",
	},
}

// PhrasesFor returns the phrase set for a language tag, defaulting to German.
func PhrasesFor(lang string) Phrases {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if p, ok := phrases[lang]; ok {
		return p
	}
	return phrases["de"]
}

var fieldLabels = map[string]string{
	booking.FieldCustomerName: "customer name",
	booking.FieldPhoneNumber:  "phone number",
	booking.FieldServiceType:  "service type",
	booking.FieldAddress:      "address",
}

// systemPrompt embeds the required fields, the conversation policy and the
// current slot state serialized as JSON.
func systemPrompt(slots booking.Slots) string {
	var b strings.Builder
	b.WriteString("You are the phone assistant of a craftsman business. You book appointments for callers.\n")
	b.WriteString("Required information: ")
	for i, f := range booking.RequiredFields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fieldLabels[f])
	}
	b.WriteString(". Optional: description of the problem, preferred date, preferred time, urgency.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Ask exactly one question at a time.\n")
	b.WriteString("- Briefly confirm information the caller has just given.\n")
	b.WriteString("- Stay friendly and professional. Answer in the caller's language.\n")
	b.WriteString("- Respond only with the next question or the confirmation, in one or two short sentences.\n")
	if missing := booking.Missing(slots); len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for _, f := range missing {
			labels = append(labels, fieldLabels[f])
		}
		b.WriteString("Still missing: ")
		b.WriteString(strings.Join(labels, ", "))
		b.WriteString(".\n")
	}
	state, _ := json.Marshal(slots)
	b.WriteString("Collected so far: ")
	b.Write(state)
	return b.String()
}
