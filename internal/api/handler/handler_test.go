package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatmind/backend/internal/api/handler"
	"chatmind/backend/internal/auth"
	"chatmind/backend/internal/billing"
	"chatmind/backend/internal/chat"
	"chatmind/backend/internal/hub"
	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/models"
	"chatmind/backend/internal/queue"
	"chatmind/backend/internal/storage"
	"chatmind/backend/internal/usage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testPassword = "correct-horse-battery"

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
	store  *storage.Service
	rdb    *redis.Client
	queue  *queue.RedisQueue
	hub    *hub.Hub
}

// newAPIFixture wires the full HTTP stack over sqlite and miniredis with a
// BASIC daily limit of 2 so quota tests stay short.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Chatroom{},
		&models.Message{},
		&models.Subscription{},
		&models.BillingEvent{},
	))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	log := logger.NewNop()
	store := storage.NewStorageService(db, rdb)
	q := queue.NewRedisQueue(rdb, log, queue.Options{})

	tokens := auth.NewTokenManager("handler-test-secret", "chatmind-api", 30*time.Minute, 7*24*time.Hour)
	authSvc := auth.NewService(store, tokens, log, auth.OTPOptions{
		Length:      6,
		TTL:         5 * time.Minute,
		RateLimit:   50,
		RateWindow:  time.Hour,
		MaxAttempts: 3,
	})

	rooms := chat.NewChatroomService(store, log, 10*time.Minute, 10, 100)
	messages := chat.NewMessageService(store, q, log, 4000, 10, 10, 100)
	billingSvc := billing.NewService(store, log, "", "whsec_test", billing.CheckoutConfig{})
	usageSvc := usage.NewService(store, log, usage.Limits{Basic: 2, Pro: usage.Unlimited})
	eventHub := hub.NewHub(rdb, log)

	h := handler.NewHandler(store, authSvc, rooms, messages, billingSvc, usageSvc, eventHub, q, log, "test")
	router := h.Router(handler.RouterConfig{
		AuthRateLimit:  100,
		AuthRateWindow: time.Minute,
	})

	return &apiFixture{t: t, router: router, store: store, rdb: rdb, queue: q, hub: eventHub}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return env
}

func (f *apiFixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	f.t.Helper()

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(f.t, err)
		r = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// signup registers the mobile number and returns a live access token.
func (f *apiFixture) signup(mobile string) string {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/auth/signup", "", gin.H{
		"mobile_number": mobile,
		"password":      testPassword,
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/auth/login", "", gin.H{
		"mobile_number": mobile,
		"password":      testPassword,
	})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(f.t, json.Unmarshal(decode(f.t, rec).Data, &data))
	require.NotEmpty(f.t, data.AccessToken)
	return data.AccessToken
}

func (f *apiFixture) createChatroom(token, title string) uuid.UUID {
	f.t.Helper()

	rec := f.do(http.MethodPost, "/chatroom", token, gin.H{"title": title})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	var room models.Chatroom
	require.NoError(f.t, json.Unmarshal(decode(f.t, rec).Data, &room))
	return room.ID
}

func TestAuthFlow_SignupLoginMe(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/auth/signup", "", gin.H{
		"mobile_number": "+380501112233",
		"password":      testPassword,
		"full_name":     "Olena",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "User registered successfully", decode(t, rec).Message)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = f.do(http.MethodPost, "/auth/signup", "", gin.H{
		"mobile_number": "+380501112233",
		"password":      testPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/auth/login", "", gin.H{
		"mobile_number": "+380501112233",
		"password":      "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/auth/login", "", gin.H{
		"mobile_number": "+380501112233",
		"password":      testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "Login successful", env.Message)

	var login struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.Equal(t, "bearer", login.TokenType)
	require.NotEmpty(t, login.AccessToken)
	require.NotEmpty(t, login.RefreshToken)

	rec = f.do(http.MethodGet, "/user/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.User
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &me))
	assert.Equal(t, "+380501112233", me.MobileNumber)
	assert.Equal(t, "Olena", me.FullName)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = f.do(http.MethodGet, "/user/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthFlow_RefreshAndLogout(t *testing.T) {
	f := newAPIFixture(t)
	f.signup("+380501112233")

	rec := f.do(http.MethodPost, "/auth/login", "", gin.H{
		"mobile_number": "+380501112233",
		"password":      testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &login))

	rec = f.do(http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &refreshed))

	rec = f.do(http.MethodGet, "/user/me", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// An access token cannot stand in for a refresh token.
	rec = f.do(http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": login.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/auth/logout", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/user/me", login.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout blacklists only the presented access token.
	rec = f.do(http.MethodGet, "/user/me", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")

	rec := f.do(http.MethodPut, "/user/me", token, gin.H{
		"full_name": "  Taras  ",
		"email":     "taras@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.User
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &me))
	assert.Equal(t, "Taras", me.FullName)
	assert.Equal(t, "taras@example.com", me.Email)
}

func TestChatroomLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")

	roomID := f.createChatroom(token, "General")

	rec := f.do(http.MethodGet, "/chatroom", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page chat.ChatroomPage
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &page))
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Chatrooms, 1)
	assert.Equal(t, "General", page.Chatrooms[0].Title)

	rec = f.do(http.MethodGet, "/chatroom/"+roomID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Chatroom models.Chatroom  `json:"chatroom"`
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &detail))
	assert.Equal(t, roomID, detail.Chatroom.ID)
	assert.Empty(t, detail.Messages)

	rec = f.do(http.MethodPut, "/chatroom/"+roomID.String(), token, gin.H{"title": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Chatroom
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &updated))
	assert.Equal(t, "Renamed", updated.Title)

	rec = f.do(http.MethodDelete, "/chatroom/"+roomID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/chatroom/"+roomID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/chatroom/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatroomIsolation(t *testing.T) {
	f := newAPIFixture(t)
	owner := f.signup("+380501112233")
	stranger := f.signup("+380671234567")

	roomID := f.createChatroom(owner, "Private")

	rec := f.do(http.MethodGet, "/chatroom/"+roomID.String(), stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/chatroom/"+roomID.String()+"/message", stranger, gin.H{"content": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitMessage_EnqueuesJob(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")
	roomID := f.createChatroom(token, "General")

	rec := f.do(http.MethodPost, "/chatroom/"+roomID.String()+"/message", token, gin.H{
		"content": "  What is the capital of Ukraine?  ",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted struct {
		Message models.Message `json:"message"`
		JobID   string         `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &submitted))
	assert.Equal(t, models.StatusPending, submitted.Message.Status)
	assert.Equal(t, "What is the capital of Ukraine?", submitted.Message.Content)
	require.NotEmpty(t, submitted.JobID)

	// Transport-side state before any worker claims it.
	rec = f.do(http.MethodGet, "/chatroom/job/"+submitted.JobID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state queue.JobStatus
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &state))
	assert.Equal(t, queue.StatePending, state.State)

	d, err := f.queue.Claim(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, submitted.JobID, d.Job.ID)
	assert.Equal(t, submitted.Message.ID, d.Job.MessageID)
	assert.Equal(t, "What is the capital of Ukraine?", d.Job.Prompt)

	statusPath := "/chatroom/" + roomID.String() + "/message/" + submitted.Message.ID.String() + "/status"
	rec = f.do(http.MethodGet, statusPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status chat.MessageStatus
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &status))
	assert.Equal(t, string(models.StatusPending), status.Status)
	assert.False(t, status.HasAIResponse)
}

func TestMessageStatus_UnknownMessage(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")
	roomID := f.createChatroom(token, "General")

	path := "/chatroom/" + roomID.String() + "/message/" + uuid.NewString() + "/status"
	rec := f.do(http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitMessage_QuotaExhaustsAndProLifts(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")
	roomID := f.createChatroom(token, "General")
	path := "/chatroom/" + roomID.String() + "/message"

	for i := 0; i < 2; i++ {
		rec := f.do(http.MethodPost, path, token, gin.H{"content": fmt.Sprintf("message %d", i)})
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}

	rec := f.do(http.MethodPost, path, token, gin.H{"content": "one too many"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, rec.Body.String(), "daily_limit")

	// Upgrading to PRO lifts the limit immediately.
	user, err := f.store.GetUserByMobile("+380501112233")
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertSubscription(&models.Subscription{
		UserID: user.ID,
		Tier:   models.TierPro,
		Status: "active",
	}))

	rec = f.do(http.MethodPost, path, token, gin.H{"content": "pro now"})
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestSubscriptionStatus(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")

	rec := f.do(http.MethodGet, "/subscription/status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Subscription models.Subscription `json:"subscription"`
		Usage        usage.Decision      `json:"usage"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, models.TierBasic, data.Subscription.Tier)
	assert.True(t, data.Usage.Allowed)
	assert.EqualValues(t, 2, data.Usage.Limit)
}

func TestSubscribePro_Unconfigured(t *testing.T) {
	f := newAPIFixture(t)
	token := f.signup("+380501112233")

	rec := f.do(http.MethodPost, "/subscribe/pro", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &live))
	assert.Equal(t, "healthy", live.Status)
	assert.Equal(t, "test", live.Version)

	rec = f.do(http.MethodGet, "/health/detailed", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "postgres")
	assert.Contains(t, body, "redis")
	assert.Contains(t, body, "queue")
}

func TestAuthRoutesCarryRateLimitHeaders(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/auth/login", "", gin.H{
		"mobile_number": "+380501112233",
		"password":      "whatever",
	})
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServeWebSocket_PushesTerminalEvents(t *testing.T) {
	f := newAPIFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.hub.Run(ctx)

	token := f.signup("+380501112233")
	user, err := f.store.GetUserByMobile("+380501112233")
	require.NoError(t, err)

	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	frames := make(chan []byte, 1)
	go func() {
		_, frame, err := conn.ReadMessage()
		if err == nil {
			frames <- frame
		}
	}()

	replyID := uuid.New()
	ev := hub.Event{
		Type:       hub.EventMessageCompleted,
		UserID:     user.ID,
		ChatroomID: uuid.New(),
		MessageID:  uuid.New(),
		ReplyID:    &replyID,
	}
	pub := hub.NewPublisher(f.rdb, logger.NewNop())

	// Registration and the pub/sub subscription settle on their own
	// goroutines, so publish until the frame lands.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	var frame []byte
	for frame == nil {
		select {
		case frame = <-frames:
		case <-tick.C:
			require.NoError(t, pub.Publish(context.Background(), ev))
		case <-deadline:
			t.Fatal("no websocket event received")
		}
	}

	var got hub.Event
	require.NoError(t, json.Unmarshal(frame, &got))
	assert.Equal(t, hub.EventMessageCompleted, got.Type)
	assert.Equal(t, ev.MessageID, got.MessageID)
	require.NotNil(t, got.ReplyID)
	assert.Equal(t, replyID, *got.ReplyID)
}

func TestServeWebSocket_RejectsAnonymous(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
