package routes_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/adapters/memory"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/api/handlers"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/api/routes"
	"github.com/zatekoja/Patientqueuedesign/backend/internal/application/services"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	bus := memory.NewEventBus()
	notifier := services.NewNotifier(bus, 0)
	store := services.NewQueueStore(memory.NewQueueEntryRepository(), services.NewWaitEstimator(20))
	manager := services.NewQueueManager(store, services.NewProviderLocks(), notifier)
	referrals := services.NewReferralCoordinator(manager)
	ranking := services.NewProviderRankingService(memory.NewProviderRepository(), notifier)

	router := routes.NewRouter(
		handlers.NewQueueHandler(manager),
		handlers.NewReferralHandler(referrals),
		handlers.NewProviderHandler(ranking),
		handlers.NewSSEHandler(bus, manager),
		nil,
		nil,
	)

	server := httptest.NewServer(router.SetupRoutes())
	t.Cleanup(func() {
		server.Close()
		bus.Close()
	})
	return server
}

func call(t *testing.T, server *httptest.Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestRouter_QueueAndReferralFlow(t *testing.T) {
	server := newTestServer(t)

	status, p1 := call(t, server, http.MethodPost, "/api/providers/D1/queue", `{"patient_id":"P1"}`)
	require.Equal(t, http.StatusCreated, status)
	status, p2 := call(t, server, http.MethodPost, "/api/providers/D1/queue", `{"patient_id":"P2"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(2), p2["position"])
	assert.Equal(t, float64(40), p2["estimated_wait"])

	status, _ = call(t, server, http.MethodPost, "/api/providers/D2/queue", `{"patient_id":"P1"}`)
	assert.Equal(t, http.StatusConflict, status)

	p1ID := p1["id"].(string)
	status, started := call(t, server, http.MethodPost, "/api/queue-entries/"+p1ID+"/start", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "in progress", started["estimated_wait"])

	status, _ = call(t, server, http.MethodPost, "/api/queue-entries/"+p2["id"].(string)+"/complete", "")
	assert.Equal(t, http.StatusConflict, status)

	status, referral := call(t, server, http.MethodPost, "/api/queue-entries/"+p1ID+"/referral",
		`{"from_provider_id":"D1","to_provider_id":"D2","reason":"cardiology review"}`)
	require.Equal(t, http.StatusOK, status)
	referred := referral["referred_entry"].(map[string]interface{})
	assert.Equal(t, "D2", referred["provider_id"])
	assert.Equal(t, float64(1), referred["position"])
	assert.Equal(t, p1ID, referred["referred_from_entry_id"])

	status, queue := call(t, server, http.MethodGet, "/api/providers/D1/queue", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), queue["length"])
	first := queue["entries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "P2", first["patient_id"])
	assert.Equal(t, float64(1), first["position"])

	status, active := call(t, server, http.MethodGet, "/api/patients/P1/queue-entry", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "D2", active["provider_id"])

	status, _ = call(t, server, http.MethodGet, "/api/queue-entries/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_ProviderRanking(t *testing.T) {
	server := newTestServer(t)

	for _, body := range []struct{ id, json string }{
		{"D1", `{"name":"A","specialization":"cardiology","base_rating":4.0,"experience_years":5}`},
		{"D2", `{"name":"B","specialization":"cardiology","base_rating":4.6,"experience_years":10}`},
		{"D3", `{"name":"C","specialization":"cardiology","base_rating":4.2,"experience_years":20}`},
	} {
		status, _ := call(t, server, http.MethodPut, "/api/providers/"+body.id, body.json)
		require.Equal(t, http.StatusOK, status)
	}

	status, _ := call(t, server, http.MethodPost, "/api/providers/D1/pin", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, status)
	status, boosted := call(t, server, http.MethodPost, "/api/providers/D2/boost", `{"boost":0.8,"reason":"outcomes"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 5.0, boosted["final_rating"])

	status, _ = call(t, server, http.MethodPost, "/api/providers/D3/boost", `{"boost":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, listing := call(t, server, http.MethodGet, "/api/providers?specialization=Cardiology", "")
	require.Equal(t, http.StatusOK, status)
	var order []string
	for _, p := range listing["providers"].([]interface{}) {
		order = append(order, p.(map[string]interface{})["provider_id"].(string))
	}
	assert.Equal(t, []string{"D1", "D2", "D3"}, order)
}

func TestRouter_Health(t *testing.T) {
	server := newTestServer(t)

	resp, err := server.Client().Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
