package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chadiek/phone-assistant/internal/telephony"
)

// Routes bundles the handlers mounted on the server.
type Routes struct {
	Voice  *telephony.VoiceHandler
	Stream *telephony.StreamHandler
	// TwilioAuthToken enables webhook signature validation when set.
	TwilioAuthToken string
	PublicBaseURL   string
}

// New creates a configured Echo server instance.
func New(r Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	if r.Voice != nil {
		e.POST("/twilio/voice", r.Voice.Handle, telephony.Auth(r.TwilioAuthToken, r.PublicBaseURL))
	}
	if r.Stream != nil {
		e.GET(telephony.StreamPath, r.Stream.Handle)
	}
	return e
}
