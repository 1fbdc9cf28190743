package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// CampaignsHandler exposes campaign CRUD and the operator control
// operations named in spec.md §5 ("reset stuck tasks") and §4.9
// (retry failed/skipped leads).
type CampaignsHandler struct {
	store store.Store
	token string
}

func NewCampaignsHandler(st store.Store, token string) *CampaignsHandler {
	return &CampaignsHandler{store: st, token: token}
}

func (h *CampaignsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/campaigns/{id}", h.auth(h.handleGet))
	mux.HandleFunc("POST /v1/campaigns", h.auth(h.handleCreate))
	mux.HandleFunc("POST /v1/campaigns/{id}/pause", h.auth(h.handlePause))
	mux.HandleFunc("POST /v1/campaigns/{id}/resume", h.auth(h.handleResume))
	mux.HandleFunc("POST /v1/campaigns/{id}/leads/{leadId}/retry", h.auth(h.handleRetryLead))
	mux.HandleFunc("POST /v1/campaigns/{id}/reset-stuck-tasks", h.auth(h.handleResetStuckTasks))
}

func (h *CampaignsHandler) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.token != "" && extractBearerToken(r) != h.token {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (h *CampaignsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	c, err := h.store.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CampaignsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var c store.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := c.Schedule.Valid(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.Status == "" {
		c.Status = store.CampaignDraft
	}
	if c.Mode == "" {
		c.Mode = store.CampaignModeAuto
	}
	if c.Channel == "" {
		c.Channel = store.ChannelBrowserDM
	}
	if err := h.store.CreateCampaign(r.Context(), &c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CampaignsHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, store.CampaignPaused)
}

func (h *CampaignsHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, store.CampaignActive)
}

func (h *CampaignsHandler) setStatus(w http.ResponseWriter, r *http.Request, status store.CampaignStatus) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	if err := h.store.SetStatus(r.Context(), id, status); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// handleRetryLead implements spec.md §4.9: reset a failed/skipped lead
// to pending, recording its prior sender in failed_sender_ids.
func (h *CampaignsHandler) handleRetryLead(w http.ResponseWriter, r *http.Request) {
	leadID, err := uuid.Parse(r.PathValue("leadId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	campaignID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	lead, err := h.store.GetLead(r.Context(), leadID)
	if err != nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	delta := store.CampaignStatsDelta{Pending: 1, Failed: -1}
	if lead.Status == store.LeadSkipped {
		delta = store.CampaignStatsDelta{Pending: 1, Skipped: -1}
	}
	if err := h.store.ResetToPending(r.Context(), leadID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.store.AdjustStats(r.Context(), campaignID, delta); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(store.LeadPending)})
}

// handleResetStuckTasks implements the operator "reset stuck tasks"
// cancellation path (spec.md §5): marks every non-terminal task for the
// account failed and returns its lead to pending with stats adjusted.
func (h *CampaignsHandler) handleResetStuckTasks(w http.ResponseWriter, r *http.Request) {
	campaignID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid campaign id")
		return
	}
	c, err := h.store.GetCampaign(r.Context(), campaignID)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}

	reset, err := h.store.ResetStuckForAccount(r.Context(), c.AccountID, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, task := range reset {
		if task.CampaignLeadID == uuid.Nil {
			continue
		}
		ok, err := h.store.SetTerminal(r.Context(), task.CampaignLeadID, store.LeadQueued, store.LeadPending, func(l *store.CampaignLead) {
			l.SenderID = nil
			l.QueuedAt = nil
			l.TaskID = nil
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			h.store.AdjustStats(r.Context(), task.CampaignID, store.CampaignStatsDelta{Queued: -1, Pending: 1})
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset_count": len(reset)})
}
