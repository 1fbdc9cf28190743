package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/memstore"
)

func newTestMux(token string) (*http.ServeMux, *memstore.Store) {
	st := memstore.New()
	mux := http.NewServeMux()
	NewCampaignsHandler(st, token).RegisterRoutes(mux)
	return mux, st
}

func validSchedule() store.Schedule {
	return store.Schedule{TimeZone: "UTC", ActiveHoursStart: 0, ActiveHoursEnd: 24, PacingMode: store.PacingSmooth, DailyCapPerSender: 50}
}

func TestHandleCreateRejectsMissingToken(t *testing.T) {
	mux, _ := newTestMux("secret")

	body, _ := json.Marshal(store.Campaign{Schedule: validSchedule()})
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleCreateSucceedsAndDefaultsFields(t *testing.T) {
	mux, _ := newTestMux("secret")

	body, _ := json.Marshal(store.Campaign{AccountID: uuid.New(), Schedule: validSchedule()})
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec.Code, rec.Body.String())
	}
	var got store.Campaign
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != store.CampaignDraft {
		t.Fatalf("status = %s, want draft", got.Status)
	}
	if got.Mode != store.CampaignModeAuto {
		t.Fatalf("mode = %s, want auto", got.Mode)
	}
	if got.Channel != store.ChannelBrowserDM {
		t.Fatalf("channel = %s, want browser_dm", got.Channel)
	}
}

func TestHandleCreateRejectsInvalidSchedule(t *testing.T) {
	mux, _ := newTestMux("")

	body, _ := json.Marshal(store.Campaign{Schedule: store.Schedule{ActiveHoursStart: 10, ActiveHoursEnd: 5}})
	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePauseAndResume(t *testing.T) {
	mux, st := newTestMux("")
	campaign := store.Campaign{ID: uuid.New(), Status: store.CampaignActive, Schedule: validSchedule()}
	st.PutCampaign(&campaign)

	req := httptest.NewRequest(http.MethodPost, "/v1/campaigns/"+campaign.ID.String()+"/pause", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	got, _ := st.GetCampaign(req.Context(), campaign.ID)
	if got.Status != store.CampaignPaused {
		t.Fatalf("status = %s, want paused", got.Status)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/campaigns/"+campaign.ID.String()+"/resume", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", rec.Code)
	}
	got, _ = st.GetCampaign(req.Context(), campaign.ID)
	if got.Status != store.CampaignActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
}

func TestHandleRetryLeadResetsToPendingAndAdjustsStats(t *testing.T) {
	mux, st := newTestMux("")
	campaign := store.Campaign{ID: uuid.New(), Status: store.CampaignActive, Stats: store.CampaignStats{Failed: 1}}
	st.PutCampaign(&campaign)

	lead := store.CampaignLead{ID: uuid.New(), CampaignID: campaign.ID, Status: store.LeadFailed, SenderID: &uuid.UUID{}}
	st.PutCampaignLead(&lead)

	path := "/v1/campaigns/" + campaign.ID.String() + "/leads/" + lead.ID.String() + "/retry"
	req := httptest.NewRequest(http.MethodPost, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	got, _ := st.GetLead(req.Context(), lead.ID)
	if got.Status != store.LeadPending {
		t.Fatalf("lead status = %s, want pending", got.Status)
	}
	gotCampaign, _ := st.GetCampaign(req.Context(), campaign.ID)
	if gotCampaign.Stats.Pending != 1 || gotCampaign.Stats.Failed != 0 {
		t.Fatalf("stats = %+v, want Pending=1 Failed=0", gotCampaign.Stats)
	}
}

func TestHandleGetUnknownCampaignReturnsNotFound(t *testing.T) {
	mux, _ := newTestMux("")

	req := httptest.NewRequest(http.MethodGet, "/v1/campaigns/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
