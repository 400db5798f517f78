package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"catalog/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T, variant string) config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.Config{
		AppEnv:            "test",
		AppPort:           ":0",
		LogLevel:          "error",
		DatabaseDriver:    "sqlite",
		DatabaseDSN:       fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
		JWTSecret:         "test_jwt_secret",
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
		ImageAcquisition:  variant,
		BlobRoot:          t.TempDir(),
		PublicBaseURL:     "http://localhost:8081",
		UploadPublicPath:  "/files",
	}
}

func TestApplicationStartupAndHealthCheck(t *testing.T) {
	for _, variant := range []string{config.AcquisitionDirect, config.AcquisitionWidget} {
		t.Run(variant, func(t *testing.T) {
			a, err := newApplication(context.Background(), testConfig(t, variant), zap.NewNop())
			require.NoError(t, err)
			defer a.Close()

			// --- Test Health Endpoint ---
			resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), `"status":"healthy"`)
			assert.Contains(t, string(body), fmt.Sprintf(`"acquisition":%q`, variant))

			// --- Test Unauthenticated Access ---
			resp, err = a.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/products", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			// --- Test Login and Authenticated Access ---
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
				strings.NewReader(`{"username":"admin","password":"password123"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err = a.app.Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var login struct {
				Token string `json:"token"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))

			req = httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
			req.Header.Set("Authorization", "Bearer "+login.Token)
			resp, err = a.app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			body, _ = io.ReadAll(resp.Body)
			assert.JSONEq(t, `[]`, string(body))
		})
	}
}

func TestMigrateCommandTarget(t *testing.T) {
	cfg := testConfig(t, config.AcquisitionDirect)
	db, err := openDatabase(cfg)
	require.NoError(t, err)

	require.NoError(t, migrate(context.Background(), db))
	assert.True(t, db.Migrator().HasTable("products"))
}

func TestNewApplicationRejectsUnknownVariant(t *testing.T) {
	cfg := testConfig(t, "carrier-pigeon")
	_, err := newApplication(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
