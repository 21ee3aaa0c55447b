package telephony

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallControl completes in-progress calls through the Twilio REST API.
type CallControl struct {
	client *twilio.RestClient
}

func NewCallControl(accountSID, authToken string) (*CallControl, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("missing Twilio credentials: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN required for call control")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &CallControl{client: client}, nil
}

// Hangup sets the call status to completed.
func (cc *CallControl) Hangup(ctx context.Context, callSid string) error {
	params := &twilioApi.UpdateCallParams{}
	params.SetStatus("completed")

	errc := make(chan error, 1)
	go func() {
		_, err := cc.client.Api.UpdateCall(callSid, params)
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("hang up call %s: %w", callSid, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
