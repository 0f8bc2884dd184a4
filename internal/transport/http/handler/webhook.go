package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-account-link/internal/domain"
	"github.com/go-account-link/internal/pkg/validate"
)

// WebhookHandler receives inbound chat messages relayed by the bot
// transport and answers with the text the bot should send back. The
// transport always gets a 200 with a reply; failure modes are expressed
// in the reply text, not the status code.
type WebhookHandler struct {
	svc BindingService
}

func NewWebhookHandler(svc BindingService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

type webhookMessage struct {
	ExternalID   int64  `json:"external_id" validate:"required"`
	ExternalName string `json:"external_name"`
	Text         string `json:"text" validate:"required"`
}

const helpText = "Commands: !bind <code> links your account, !unbind removes the link, !info shows the current link."

func (h *WebhookHandler) Message(w http.ResponseWriter, r *http.Request) {
	var msg webhookMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := strings.Fields(msg.Text)
	var reply string
	switch {
	case len(fields) == 2 && fields[0] == "!bind":
		out := h.svc.CompleteBindByCode(r.Context(), fields[1], msg.ExternalID, msg.ExternalName)
		reply = bindReply(out)
	case len(fields) == 1 && fields[0] == "!bind":
		reply = "Usage: !bind <code>"
	case len(fields) == 1 && fields[0] == "!unbind":
		out := h.svc.CompleteUnbindByExternal(r.Context(), msg.ExternalID, msg.ExternalName)
		reply = unbindReply(out)
	case len(fields) == 1 && fields[0] == "!info":
		out := h.svc.QueryInfoByExternal(r.Context(), msg.ExternalID)
		reply = infoReply(out)
	default:
		reply = helpText
	}
	writeJSON(w, http.StatusOK, ReplyEnvelope{Reply: reply})
}

func bindReply(out domain.Outcome) string {
	switch out.Kind {
	case domain.OutcomeBound:
		return fmt.Sprintf("Done! You are now linked to %s.", bindingName(out.Binding))
	case domain.OutcomeUpdated:
		return fmt.Sprintf("You were already linked to %s; the link has been refreshed.", bindingName(out.Binding))
	case domain.OutcomeInvalidFormat, domain.OutcomeRequestNotFound, domain.OutcomeCodeExpired:
		return out.Reason + "."
	case domain.OutcomeExternalAlreadyBound:
		return "This chat account is already linked. Use !unbind first."
	case domain.OutcomeLocalAlreadyBound:
		return "That account is already linked to someone else."
	case domain.OutcomeConflict:
		return "The link changed while processing, please try again."
	case domain.OutcomePersistenceUnavailable:
		return "Storage is temporarily unavailable, please try again later."
	default:
		return "Something went wrong, please try again."
	}
}

func unbindReply(out domain.Outcome) string {
	switch out.Kind {
	case domain.OutcomeUnbound:
		return fmt.Sprintf("Your link to %s has been removed.", bindingName(out.Binding))
	case domain.OutcomeNotBound:
		return "This chat account is not linked to anything."
	case domain.OutcomeConflict:
		return "The link changed while processing, please try again."
	case domain.OutcomePersistenceUnavailable:
		return "Storage is temporarily unavailable, please try again later."
	default:
		return "Something went wrong, please try again."
	}
}

func infoReply(out domain.Outcome) string {
	switch out.Kind {
	case domain.OutcomeBound:
		return fmt.Sprintf("You are linked to %s (since %s).", bindingName(out.Binding), out.Binding.CreatedAt.Format("2006-01-02"))
	case domain.OutcomeNotBound:
		return "This chat account is not linked. Request a code in game and use !bind <code>."
	case domain.OutcomePersistenceUnavailable:
		return "Storage is temporarily unavailable, please try again later."
	default:
		return "Something went wrong, please try again."
	}
}

func bindingName(b *domain.Binding) string {
	if b == nil {
		return "your account"
	}
	if b.DisplayName != "" {
		return b.DisplayName
	}
	return b.LocalID
}
