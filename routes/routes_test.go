package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"instagram-automation/internal/caption"
	"instagram-automation/internal/executor"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/jobs"
	"instagram-automation/internal/media"
	"instagram-automation/internal/schedule"
	"instagram-automation/internal/store"
	"instagram-automation/middleware"
	"instagram-automation/models"
	"instagram-automation/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router    *gin.Engine
	scheduler *jobs.Scheduler
	uploadDir string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemoryStore()
	client := instagram.NewClient(instagram.DefaultConfig())
	exec := executor.New(mem, client)
	scheduler := jobs.NewScheduler(exec)
	t.Cleanup(scheduler.Stop)

	dir := t.TempDir()
	uploads := media.NewStorage(dir, 1<<20, []string{"image/jpeg", "image/png"})
	resolver := media.NewResolver(media.NewLocalProvider(""), "http://localhost:5555")

	defaults := services.ScheduleDefaults{Timezone: "UTC", Slot1: "09:00", Slot2: "18:00", VarianceMinutes: 0}
	router := gin.New()
	SetupAPIRoutes(router, Handlers{
		Accounts: services.NewAccountService(mem, client, defaults),
		Posts: services.NewPostService(mem, caption.NewComposer(mem, 0), schedule.NewCalculator(mem),
			resolver, scheduler, client, defaults.Timezone),
		Catalog: services.NewCatalogService(mem),
		Uploads: uploads,
		Jobs:    scheduler,
	}, middleware.NewAuthMiddleware(nil))

	return &testAPI{router: router, scheduler: scheduler, uploadDir: dir}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (a *testAPI) registerSimulation(t *testing.T) models.Account {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/accounts", gin.H{
		"username": "test_travel_1", "instagram_id": "test987654", "access_token": "test_token_0011223344556677",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Account](t, w)
}

func TestAccountRoutes(t *testing.T) {
	api := newTestAPI(t)
	account := api.registerSimulation(t)
	assert.NotContains(t, api.do(t, http.MethodGet, "/api/accounts/"+account.ID.Hex(), nil).Body.String(), "test_token_")

	w := api.do(t, http.MethodPost, "/api/accounts", gin.H{
		"username": "test_travel_1", "instagram_id": "test987654", "access_token": "test_token_x",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[map[string]any](t, w)["error_code"])

	w = api.do(t, http.MethodPost, "/api/accounts", gin.H{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPut, "/api/accounts/"+account.ID.Hex()+"/schedule", gin.H{
		"time_slot_1": "20:00", "time_slot_2": "08:00",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPut, "/api/accounts/"+account.ID.Hex()+"/active", gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.Account](t, w).IsActive)

	w = api.do(t, http.MethodGet, "/api/accounts?active=true", nil)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["count"])
}

func TestSubmitJSONNow(t *testing.T) {
	api := newTestAPI(t)
	account := api.registerSimulation(t)

	w := api.do(t, http.MethodPost, "/api/posts", gin.H{
		"account_id":  account.ID.Hex(),
		"kind":        "carousel",
		"custom_text": "Day one",
		"media_urls":  []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode[models.Post](t, w)
	assert.Equal(t, models.PostStatusPosted, post.Status)
	assert.Equal(t, "Day one", post.Caption)

	w = api.do(t, http.MethodGet, "/api/posts/"+post.ID.Hex()+"/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	type metricsBody struct {
		PostID  string           `json:"post_id"`
		Metrics map[string]int64 `json:"metrics"`
	}
	body := decode[metricsBody](t, w)
	assert.Equal(t, post.ID.Hex(), body.PostID)
	assert.Contains(t, body.Metrics, "impressions")

	w = api.do(t, http.MethodPost, "/api/posts/"+post.ID.Hex()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodGet, "/api/stats", nil)
	stats := decode[models.PostStats](t, w)
	assert.Equal(t, int64(1), stats.Posted)
}

func TestSubmitScheduledThenCancel(t *testing.T) {
	api := newTestAPI(t)
	account := api.registerSimulation(t)

	w := api.do(t, http.MethodPost, "/api/posts", gin.H{
		"account_id":    account.ID.Hex(),
		"schedule_type": "next_slot",
		"media_urls":    []string{"https://cdn.example.com/1.jpg"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	post := decode[models.Post](t, w)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.True(t, post.ScheduledTime.After(time.Now()))

	w = api.do(t, http.MethodGet, "/api/jobs", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = api.do(t, http.MethodPost, "/api/posts/"+post.ID.Hex()+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PostStatusCancelled, decode[models.Post](t, w).Status)
	assert.Empty(t, api.scheduler.Pending())
}

func TestSubmitMultipartUpload(t *testing.T) {
	api := newTestAPI(t)
	account := api.registerSimulation(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("account_id", account.ID.Hex()))
	require.NoError(t, mw.WriteField("kind", "story"))
	require.NoError(t, mw.WriteField("story_elements", `{"text_overlay":"hi","mentions":["pal"]}`))
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="files"; filename="sunset.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("fake jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	post := decode[models.Post](t, w)
	assert.Equal(t, models.PostKindStory, post.Kind)
	assert.Equal(t, models.PostStatusPosted, post.Status)
	assert.Equal(t, []string{"sunset.jpg"}, post.OriginalFilenames)
	require.NotNil(t, post.StoryElements)
	assert.Equal(t, "hi", post.StoryElements.TextOverlay)

	require.Len(t, post.MediaURLs, 1)
	name := filepath.Base(post.MediaURLs[0])
	_, err = os.Stat(filepath.Join(api.uploadDir, name))
	assert.NoError(t, err)

	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fake jpeg", w.Body.String())
}

func TestPostNotFound(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/posts/"+"64b7f0000000000000000000", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[map[string]any](t, w)["error_code"])

	w = api.do(t, http.MethodGet, "/api/posts/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[map[string]any](t, w)["error_code"])
}

func TestCatalogRoutes(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/hashtags", gin.H{"tag": "#wanderlust", "category": "Travel"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(t, http.MethodPut, "/api/hashtags/wanderlust/active", gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/hashtags", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = api.do(t, http.MethodPost, "/api/templates", gin.H{"name": "Tips", "template": "{day_of_week} tip: {custom_text}"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"day_of_week", "custom_text"}, decode[models.CaptionTemplate](t, w).Variables)

	w = api.do(t, http.MethodGet, "/api/templates", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])
}

func TestExportPosts(t *testing.T) {
	api := newTestAPI(t)
	account := api.registerSimulation(t)

	w := api.do(t, http.MethodPost, "/api/posts", gin.H{
		"account_id": account.ID.Hex(),
		"media_urls": []string{"https://cdn.example.com/a.jpg"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/api/export/posts?account_id="+account.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = api.do(t, http.MethodGet, "/api/export/posts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
