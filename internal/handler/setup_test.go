package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/naa-portal-api/internal/config"
	"github.com/noah-isme/naa-portal-api/internal/database"
	"github.com/noah-isme/naa-portal-api/internal/events"
	"github.com/noah-isme/naa-portal-api/internal/handler"
	"github.com/noah-isme/naa-portal-api/internal/middleware"
	"github.com/noah-isme/naa-portal-api/internal/offline"
	"github.com/noah-isme/naa-portal-api/internal/repository"
	"github.com/noah-isme/naa-portal-api/internal/router"
	"github.com/noah-isme/naa-portal-api/internal/service"
)

const testSecret = "handler-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type portal struct {
	app *fiber.App
}

func testConfig() config.Config {
	return config.Config{AppName: "naa-portal-test", AppEnv: "test"}
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	cfg := testConfig()
	cfg.CPDTargetPoints = decimal.NewFromInt(30)
	cfg.CPDMaxPoints = decimal.NewFromInt(50)
	cfg.LedgerRetryAttempts = 3
	cfg.BulkApproveLimit = 50
	policy := cfg.CPDPolicy()

	members := repository.NewMemberRepository(db)
	store := repository.NewCPDStore(db)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	ledger := service.NewCPDLedgerService(store, nil, time.Minute, activity, logger)
	periods := service.NewPeriodService(store, validate, policy, activity, logger)
	memberSvc := service.NewMemberService(members, ledger, events.Nop{}, validate, activity, logger)
	verification := service.NewVerificationService(store, members, ledger, events.Nop{}, validate, policy, activity, logger)
	artifacts := service.NewArtifactService(repository.NewArtifactRepository(db), validate, activity, logger)

	offlinePolicy, err := offline.NewPolicy("https://portal.naa.org.ng", "v7", "/offline/", []string{"/static/js/app.js"})
	require.NoError(t, err)

	app := fiber.New()
	middleware.Register(app, middleware.Config{})
	router.Register(app, cfg, router.Dependencies{
		MemberHandler:        handler.NewMemberHandler(memberSvc, logger),
		ArtifactHandler:      handler.NewArtifactHandler(artifacts, memberSvc, logger),
		CPDHandler:           handler.NewCPDHandler(verification, ledger, nil, logger),
		AdminCPDHandler:      handler.NewAdminCPDHandler(verification, logger),
		AdminMemberHandler:   handler.NewAdminMemberHandler(memberSvc, ledger, logger),
		AdminPeriodHandler:   handler.NewAdminPeriodHandler(periods, logger),
		AdminActivityHandler: handler.NewAdminActivityHandler(activity, logger),
		OfflineHandler:       handler.NewOfflineHandler(offlinePolicy, validate, logger),
		JWTMiddleware:        middleware.JWTProtected(testSecret),
	})

	return &portal{app: app}
}

func token(t *testing.T, memberID uint, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", memberID),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (p *portal) call(t *testing.T, method, path, bearer string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}

	resp, err := p.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var payload envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func decodeData(t *testing.T, payload envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(payload.Data, target))
}

func (p *portal) register(t *testing.T, username, institution string) uint {
	t.Helper()
	status, payload := p.call(t, http.MethodPost, "/api/v1/members/register", "", map[string]string{
		"username":    username,
		"email":       username + "@example.org",
		"tier":        "student",
		"institution": institution,
	})
	require.Equal(t, http.StatusCreated, status, payload.Message)
	var member struct {
		ID uint `json:"id"`
	}
	decodeData(t, payload, &member)
	return member.ID
}

func (p *portal) promote(t *testing.T, admin string, memberID uint, level string) {
	t.Helper()
	status, payload := p.call(t, http.MethodPost, fmt.Sprintf("/api/admin/members/%d/verify", memberID), admin, nil)
	require.Equal(t, http.StatusOK, status, payload.Message)
	status, payload = p.call(t, http.MethodPatch, fmt.Sprintf("/api/admin/members/%d/tier", memberID), admin, map[string]string{"tier": level})
	require.Equal(t, http.StatusOK, status, payload.Message)
}

func (p *portal) openPeriod(t *testing.T, admin string) uint {
	t.Helper()
	now := time.Now().UTC()
	status, payload := p.call(t, http.MethodPost, "/api/admin/periods", admin, map[string]interface{}{
		"name":      "Current cycle",
		"starts_on": now.AddDate(0, -1, 0).Format(time.RFC3339),
		"ends_on":   now.AddDate(0, 11, 0).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, status, payload.Message)
	var period struct {
		ID uint `json:"id"`
	}
	decodeData(t, payload, &period)
	return period.ID
}
