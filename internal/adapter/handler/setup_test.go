package handler

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/filevault/internal/infrastructure/repository"
	"github.com/zots0127/filevault/internal/infrastructure/storage"
	"github.com/zots0127/filevault/internal/infrastructure/tokenstore"
	"github.com/zots0127/filevault/internal/usecase"
	"github.com/zots0127/filevault/pkg/logger"
	"github.com/zots0127/filevault/pkg/metrics"
	"github.com/zots0127/filevault/pkg/middleware"
	"github.com/zots0127/filevault/pkg/signer"
)

const (
	testJWTSecret    = "handler-test-jwt-secret"
	testServiceToken = "handler-test-service-token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	metrics *metrics.MetricsCollector
	root    string
}

func newTestServer(t *testing.T, quota int64) *testServer {
	t.Helper()
	root := t.TempDir()
	log := logger.Nop()

	store, err := storage.NewStore(storage.Config{Root: root, QuotaBytes: quota})
	require.NoError(t, err)
	sessions, err := storage.NewSessionStore(root)
	require.NoError(t, err)
	tokens := tokenstore.NewMemoryStore()
	mc := metrics.NewMetricsCollector()
	s := signer.New(signer.Config{Secret: "signing-secret", PublicBaseURL: "http://localhost:8080"})

	auth, err := middleware.NewAuthentication(middleware.AuthConfig{
		ServiceToken: testServiceToken,
		Algorithm:    "HS256",
		Secret:       testJWTSecret,
	}, log)
	require.NoError(t, err)

	upload := usecase.NewUploadUseCase(store, sessions, mc, log, 0)
	files := usecase.NewFileUseCase(store, s, mc, log)
	batch := usecase.NewBatchUseCase(store, tokens, mc, log, usecase.BatchConfig{SpoolDir: t.TempDir()})
	health := usecase.NewHealthUseCase(repository.NewHealthRepository(tokens, root), "test")

	mwConfig := middleware.DefaultConfig()
	mwConfig.MaxBodyBytes = 1 << 20

	router := NewRouter(RouterConfig{
		Chain:   middleware.NewMiddlewareChain(mwConfig, log, mc),
		Auth:    auth,
		Metrics: mc,
	}, Handlers{
		Upload: NewUploadHandler(upload, log),
		Files:  NewFileHandler(files, log),
		Serve:  NewServeHandler(files, mc, log),
		Batch:  NewBatchHandler(batch, log),
		Health: NewHealthHandler(health),
	})

	return &testServer{router: router, metrics: mc, root: root}
}

func userToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// caller attaches credentials: a user id, "service", or "" for anonymous
type caller string

const (
	anonymous caller = ""
	service   caller = "service"
)

func (ts *testServer) do(t *testing.T, who caller, method, target string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if _, isJSON := body.([]byte); body != nil && !isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	switch who {
	case anonymous:
	case service:
		req.Header.Set(middleware.ServiceTokenHeader, testServiceToken)
	default:
		req.Header.Set("Authorization", "Bearer "+userToken(t, string(who)))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	decode(t, w, &body)
	return string(body.Error.Kind)
}

// upload stores content through init, one JSON part and complete
func (ts *testServer) upload(t *testing.T, who caller, folder, name string, content []byte) CompleteResponse {
	t.Helper()

	w := ts.do(t, who, http.MethodPost, "/v1/files/init", map[string]interface{}{
		"mode":   "single",
		"files":  []map[string]interface{}{{"name": name, "size": len(content)}},
		"folder": folder,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var init struct {
		UploadID string `json:"uploadId"`
	}
	decode(t, w, &init)

	w = ts.do(t, who, http.MethodPost, "/v1/files/part", PartRequest{
		UploadID:    init.UploadID,
		PartNumber:  1,
		ChunkBase64: base64.StdEncoding.EncodeToString(content),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, who, http.MethodPost, "/v1/files/complete", map[string]interface{}{
		"uploadId": init.UploadID,
		"sha256":   sha256Hex(content),
		"meta":     map[string]interface{}{"filename": name, "folder": folder},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var done CompleteResponse
	decode(t, w, &done)
	return done
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func base64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
