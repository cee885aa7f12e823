package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/referly/backend/internal/config"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/services/graph"
	"github.com/referly/backend/internal/services/referralcode"
	"github.com/referly/backend/internal/services/users"
)

type handlerEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	userSeq int
}

// authAs injects the caller identity the way the auth middleware would
func authAs(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("email", "test@example.com")
		c.Next()
	}
}

func newHandlerEnv(t *testing.T, caller uuid.UUID) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.ReferralRelationship{}))
	require.NoError(t, db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_parent
		ON referral_relationships (referred_user_id)
		WHERE status = 'active' AND deleted_at IS NULL
	`).Error)

	cfg := config.LoadReferralConfig()
	cfg.CodeCacheSize = 0
	userSvc := users.NewUserService(db)
	codeSvc := referralcode.NewService(cfg, userSvc)
	graphSvc := graph.NewService(db, cfg, userSvc)
	handler := NewReferralHandler(codeSvc, graphSvc, userSvc)

	router := gin.New()
	router.GET("/api/referrals/code/validate/:code", handler.ValidateCode)

	protected := router.Group("/api/referrals", authAs(caller))
	protected.POST("/code/generate", handler.GenerateCode)
	protected.POST("/relationships", handler.CreateRelationship)
	protected.GET("/chain/:userID", handler.GetReferralChain)

	return &handlerEnv{db: db, router: router}
}

func (e *handlerEnv) seedUser(t *testing.T, name, code string) *models.User {
	return e.seedUserWithID(t, uuid.New(), name, code)
}

func (e *handlerEnv) seedUserWithID(t *testing.T, id uuid.UUID, name, code string) *models.User {
	t.Helper()
	e.userSeq++
	user := &models.User{
		ID:           id,
		Email:        fmt.Sprintf("user%d@example.com", e.userSeq),
		Name:         name,
		Status:       models.UserStatusActive,
		ReferralCode: code,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *handlerEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestValidateCodeEndpoint(t *testing.T) {
	env := newHandlerEnv(t, uuid.New())
	env.seedUser(t, "Alice", "ALICE999")

	w := env.do(http.MethodGet, "/api/referrals/code/validate/alice999", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["is_valid"])
	assert.Equal(t, "ALICE999", body["code"])

	w = env.do(http.MethodGet, "/api/referrals/code/validate/NOSUCH99", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["is_valid"])
	assert.Equal(t, "referral code not found", body["reason"])
}

func TestGenerateCodeEndpoint(t *testing.T) {
	caller := uuid.New()
	env := newHandlerEnv(t, caller)

	env.seedUserWithID(t, caller, "Caller", "")

	w := env.do(http.MethodPost, "/api/referrals/code/generate", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	code, ok := body["referral_code"].(string)
	require.True(t, ok)
	assert.Regexp(t, `^[A-Z0-9]{4,12}$`, code)

	// A second call returns the already assigned code instead of minting
	w = env.do(http.MethodPost, "/api/referrals/code/generate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, code, body["referral_code"])
}

func TestCreateRelationshipEndpoint(t *testing.T) {
	caller := uuid.New()
	env := newHandlerEnv(t, caller)

	env.seedUser(t, "Alice", "ALICE999")
	env.seedUserWithID(t, caller, "Caller", "")

	w := env.do(http.MethodPost, "/api/referrals/relationships", gin.H{"referral_code": "ALICE999"})
	require.Equal(t, http.StatusCreated, w.Code)

	// The same user cannot be referred twice
	w = env.do(http.MethodPost, "/api/referrals/relationships", gin.H{"referral_code": "ALICE999"})
	require.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "EXISTING_RELATIONSHIP", body["code"])
}

func TestCreateRelationshipEndpointRejectsBadCode(t *testing.T) {
	caller := uuid.New()
	env := newHandlerEnv(t, caller)

	env.seedUserWithID(t, caller, "Caller", "")

	w := env.do(http.MethodPost, "/api/referrals/relationships", gin.H{"referral_code": "NOSUCH99"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_CODE", body["code"])
}

func TestGraphErrorResponseMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{graph.ErrSelfReferral, http.StatusBadRequest},
		{graph.ErrReferrerNotFound, http.StatusNotFound},
		{graph.ErrReferredNotFound, http.StatusNotFound},
		{graph.ErrExistingRelationship, http.StatusConflict},
		{graph.ErrCircularReference, http.StatusConflict},
		{graph.ErrReferralLimitExceeded, http.StatusConflict},
		{fmt.Errorf("database exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := graphErrorResponse(tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
	}
}
