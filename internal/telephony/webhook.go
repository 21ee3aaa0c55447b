package telephony

import (
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"
)

// StreamPath is where media streams connect.
const StreamPath = "/twilio/stream"

const fallbackApology = `<?xml version="1.0" encoding="UTF-8"?><Response><Say>Sorry, we cannot take your call right now. Please try again later.</Say><Hangup/></Response>`

// VoiceHandler answers the call-entry webhook with a TwiML document that
// plays the data-handling disclosure and connects the call to the media stream.
type VoiceHandler struct {
	Disclosure         string
	Apology            string
	Language           string
	SilenceWindow      int
	PublicBaseURL      string
	DefaultCraftsmanID string
	Tokens             *TokenIssuer
}

func (h *VoiceHandler) Handle(c echo.Context) error {
	params, _ := c.Get(ParamsKey).(map[string]string)
	if params == nil {
		params = map[string]string{}
	}
	doc, err := h.connectDocument(c, params)
	if err != nil {
		log.Printf("voice webhook: call %s: %v", params["CallSid"], err)
		doc = h.apologyDocument()
	} else {
		log.Printf("voice webhook: call %s from %s connected to media stream", params["CallSid"], params["From"])
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, doc)
}

func (h *VoiceHandler) connectDocument(c echo.Context, params map[string]string) (string, error) {
	craftsmanID := c.QueryParam("craftsman_id")
	if craftsmanID == "" {
		craftsmanID = h.DefaultCraftsmanID
	}
	if craftsmanID == "" {
		return "", fmt.Errorf("no craftsman configured for this number")
	}
	caller := params["From"]

	streamParams := []twiml.Element{
		&twiml.VoiceParameter{Name: "craftsman_id", Value: craftsmanID},
		&twiml.VoiceParameter{Name: "phone_number", Value: caller},
	}
	if h.Tokens != nil {
		token, err := h.Tokens.Issue(craftsmanID, caller, params["CallSid"])
		if err != nil {
			return "", err
		}
		streamParams = append(streamParams, &twiml.VoiceParameter{Name: "token", Value: token})
	}

	silence := h.SilenceWindow
	if silence <= 0 {
		silence = 60
	}
	say := &twiml.VoiceSay{Message: h.Disclosure, Language: h.Language}
	connect := &twiml.VoiceConnect{InnerElements: []twiml.Element{
		&twiml.VoiceStream{Url: StreamURL(c, h.PublicBaseURL, StreamPath), InnerElements: streamParams},
	}}
	pause := &twiml.VoicePause{Length: strconv.Itoa(silence)}
	return twiml.Voice([]twiml.Element{say, connect, pause})
}

func (h *VoiceHandler) apologyDocument() string {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: h.Apology, Language: h.Language},
		&twiml.VoiceHangup{},
	})
	if err != nil || h.Apology == "" {
		return fallbackApology
	}
	return doc
}
