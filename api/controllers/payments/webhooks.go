package payments

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/estore-backend/api/responses"
	internalpayments "github.com/angelmondragon/estore-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// PhonePeWebhook handles POST /phonepe-webhook/.
func PhonePeWebhook(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readWebhookBody(w, r, logg)
		if !ok {
			return
		}
		result, err := svc.HandlePhonePeWebhook(r.Context(), r.Header.Get("Authorization"), body)
		writeWebhookResult(r.Context(), logg, w, result, err)
	}
}

// CashfreeWebhook handles POST /cashfree-webhook/.
func CashfreeWebhook(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readWebhookBody(w, r, logg)
		if !ok {
			return
		}
		result, err := svc.HandleCashfreeWebhook(r.Context(), internalpayments.WebhookHeaders{
			Timestamp: r.Header.Get("x-webhook-timestamp"),
			Signature: r.Header.Get("x-webhook-signature"),
		}, body)
		writeWebhookResult(r.Context(), logg, w, result, err)
	}
}

func readWebhookBody(w http.ResponseWriter, r *http.Request, logg *logger.Logger) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
		return nil, false
	}
	if len(body) == 0 {
		writeWebhookError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "empty payload"))
		return nil, false
	}
	return body, true
}

func writeWebhookResult(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, result *internalpayments.WebhookResult, err error) {
	if err != nil {
		writeWebhookError(ctx, logg, w, err)
		return
	}
	responses.WriteJSON(w, http.StatusOK, webhookResponse{Success: result.Success, Message: result.Message})
}

// writeWebhookError answers with {success:false, message}. Client-caused
// failures carry their message; anything else gets the generic public message.
func writeWebhookError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "webhook processing failed")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	msg := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized, pkgerrors.CodeNotFound, pkgerrors.CodeIntegrity:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}
	if logg != nil {
		logg.Error(logg.WithField(ctx, "error_code", string(typed.Code())), "webhook.error", err)
	}
	responses.WriteJSON(w, meta.HTTPStatus, webhookResponse{Success: false, Message: msg})
}
