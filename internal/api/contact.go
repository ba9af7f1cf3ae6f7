/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leadforge/siteapi/httpserver/middleware"
	"github.com/leadforge/siteapi/log"
	"github.com/leadforge/siteapi/restapi"
	"github.com/leadforge/siteapi/retry"
)

// ContactSuccessMessage is returned to the visitor after the lead is delivered.
const ContactSuccessMessage = "Thank you! We will get back to you shortly."

const (
	maxContactNameLen    = 100
	maxContactEmailLen   = 254
	maxContactMessageLen = 5000
	maxContactCompanyLen = 100
)

// ContactRequest is the body of POST /contact.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
	Company string `json:"company,omitempty"`
}

// ContactLead is the document delivered to the contact webhook.
type ContactLead struct {
	ContactRequest
	SubmittedAt time.Time `json:"submittedAt"`
	RequestID   string    `json:"requestId,omitempty"`
}

type contactResponseData struct {
	Message string `json:"message"`
}

func (cr *ContactRequest) normalize() {
	cr.Name = strings.TrimSpace(cr.Name)
	cr.Email = strings.TrimSpace(cr.Email)
	cr.Message = strings.TrimSpace(cr.Message)
	cr.Company = strings.TrimSpace(cr.Company)
}

// Validate checks the request fields and returns *restapi.MalformedRequestError describing the first problem.
func (cr *ContactRequest) Validate() error {
	checkLen := func(field, val string, minLen, maxLen int) error {
		n := utf8.RuneCountInString(val)
		if n < minLen {
			return restapi.NewMalformedRequestError("Field %q is required.", field)
		}
		if n > maxLen {
			return restapi.NewMalformedRequestError("Field %q must not be longer than %d characters.", field, maxLen)
		}
		return nil
	}
	if err := checkLen("name", cr.Name, 1, maxContactNameLen); err != nil {
		return err
	}
	if err := checkLen("email", cr.Email, 1, maxContactEmailLen); err != nil {
		return err
	}
	if addr, err := mail.ParseAddress(cr.Email); err != nil || addr.Address != cr.Email {
		return restapi.NewMalformedRequestError("Field %q must be a valid email address.", "email")
	}
	if err := checkLen("message", cr.Message, 1, maxContactMessageLen); err != nil {
		return err
	}
	return checkLen("company", cr.Company, 0, maxContactCompanyLen)
}

// Contact accepts a contact form submission and forwards it to the configured webhook.
// Delivery is retried on transport errors, 429 and 5xx responses.
func (h *Handler) Contact(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLoggerFromContextOrDisabled(ctx)

	var req ContactRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		h.respondError(rw, r, err)
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		h.respondError(rw, r, err)
		return
	}
	if h.cfg.Contact.WebhookURL == "" {
		h.respondError(rw, r, fmt.Errorf("contact webhook: %w", ErrNotConfigured))
		return
	}

	lead := ContactLead{
		ContactRequest: req,
		SubmittedAt:    h.now().UTC(),
		RequestID:      middleware.GetRequestIDFromContext(ctx),
	}
	if err := h.deliverLead(ctx, &lead, logger); err != nil {
		h.respondError(rw, r, fmt.Errorf("%w: deliver contact lead: %w", ErrUpstream, err))
		return
	}

	logger.Info("contact lead delivered", log.String("email", lead.Email))
	restapi.RespondSuccess(rw, http.StatusOK, contactResponseData{Message: ContactSuccessMessage}, logger)
}

func (h *Handler) deliverLead(ctx context.Context, lead *ContactLead, logger log.FieldLogger) error {
	deliver := func(ctx context.Context) error {
		req, err := restapi.NewJSONRequest(ctx, http.MethodPost, h.cfg.Contact.WebhookURL, lead)
		if err != nil {
			return err
		}
		return restapi.DoRequestAndDecodeJSON(h.webhookClient, req, nil, logger)
	}

	retries := h.cfg.Contact.DeliveryAttempts - 1
	if retries <= 0 {
		return deliver(ctx)
	}
	return retry.DoWithRetry(ctx, retry.NewExponentialBackoffPolicy(h.retryInterval, retries),
		isRetryableDeliveryError, retry.LogNotify(logger, "contact lead delivery"), deliver)
}

func isRetryableDeliveryError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var clientErr *restapi.ClientError
	if !errors.As(err, &clientErr) {
		return false
	}
	return clientErr.StatusCode == 0 ||
		clientErr.StatusCode == http.StatusTooManyRequests ||
		clientErr.StatusCode >= http.StatusInternalServerError
}
