package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"laser-vision-backend/internal/config"
	"laser-vision-backend/internal/models"
	"laser-vision-backend/internal/platform"
	"laser-vision-backend/internal/repository"
	"laser-vision-backend/internal/services"
	"laser-vision-backend/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pngHeader = "iVBORw0KGgo="

type testServer struct {
	handler  http.Handler
	token    string
	deviceID string
	root     string
	cache    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	base := t.TempDir()
	fs, err := storage.NewLocalFilesystem(map[storage.Directory]string{
		storage.DirectoryExternal: filepath.Join(base, "external"),
		storage.DirectoryCache:    filepath.Join(base, "cache"),
	})
	require.NoError(t, err)
	root, _ := fs.Root(storage.DirectoryExternal)
	cache, _ := fs.Root(storage.DirectoryCache)

	webDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html>Laser Vision</html>"), 0o644))

	app := config.AppConfig{
		AppID:  "org.bikeaction.laser",
		Name:   "Laser Vision",
		WebDir: webDir,
		Server: config.AppServerConfig{Hostname: "laser.bikeaction.org", AndroidScheme: "https"},
	}

	signer := platform.NewFileSigner("test-secret", time.Hour)
	converter := platform.NewFileSrcConverter(app.Server.AndroidScheme, app.Server.Hostname)
	converter.Signer = signer

	photoService := services.NewPhotoService(
		fs,
		platform.New(platform.Auto),
		converter,
		services.NewFetcher(5*time.Second, 100, 10),
	)
	deviceService := services.NewDeviceService("test-secret")

	handler := NewRouter(RouterDeps{
		App:           app,
		Gallery:       services.NewGalleryService(repository.NewMemoryStore(), photoService),
		DeviceService: deviceService,
		Hub:           services.NewWSHub(),
		FileRoot:      root,
		FileSigner:    signer,
	})

	ts := &testServer{handler: handler, root: root, cache: cache}
	device := ts.register(t)
	ts.token, ts.deviceID = device.Token, device.ID

	return ts
}

// register creates a new device identity
func (s *testServer) register(t *testing.T) models.Device {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var device models.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &device))
	return device
}

// as returns a copy of the server acting as another device
func (s *testServer) as(device models.Device) *testServer {
	other := *s
	other.token, other.deviceID = device.Token, device.ID
	return &other
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodePhoto(t *testing.T, rec *httptest.ResponseRecorder) models.UserPhoto {
	t.Helper()
	var photo models.UserPhoto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &photo))
	return photo
}

func TestPhotoHandler_Unauthorized(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""

	rec := ts.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPhotoHandler_SaveFetchDelete(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader, Filename: "test.jpeg"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"filepath":"test.jpeg","webviewPath":"data:image/jpeg;base64,iVBORw0KGgo="}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"photos":["test.jpeg"],"total":1}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/photos?expand=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"webviewPath":"data:image/jpeg;base64,iVBORw0KGgo="`)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos/test.jpeg", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data:image/jpeg;base64,"+pngHeader, decodePhoto(t, rec).WebviewPath)

	rec = ts.do(t, http.MethodDelete, "/api/v1/photos/test.jpeg", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos/test.jpeg", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/photos/test.jpeg", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	assert.JSONEq(t, `{"photos":[],"total":0}`, rec.Body.String())
}

func TestPhotoHandler_GeneratedName(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `^\d+\.jpeg$`, decodePhoto(t, rec).Filepath)
}

func TestPhotoHandler_NativeServesTranslatedURI(t *testing.T) {
	ts := newTestServer(t)
	hybrid := map[string]string{"X-Platform": "hybrid"}

	rec := ts.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader, Filename: "native.jpeg"}, hybrid)
	require.Equal(t, http.StatusOK, rec.Code)

	photo := decodePhoto(t, rec)
	require.True(t, strings.HasPrefix(photo.WebviewPath, "https://laser.bikeaction.org/_capacitor_file_/"), photo.WebviewPath)

	u, err := url.Parse(photo.WebviewPath)
	require.NoError(t, err)
	assert.Equal(t, platform.FilePathPrefix+filepath.ToSlash(filepath.Join(ts.root, ts.deviceID, "native.jpeg")), u.Path)

	// Image tags carry no headers; the signed URL alone loads the file
	ts.token = ""
	rec = ts.do(t, http.MethodGet, u.RequestURI(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, rec.Body.Bytes())

	rec = ts.do(t, http.MethodGet, u.Path, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/_capacitor_file_/etc/passwd?"+u.RawQuery, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/_capacitor_file_/etc/passwd", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPhotoHandler_NativeCapture(t *testing.T) {
	ts := newTestServer(t)
	hybrid := map[string]string{"X-Platform": "hybrid"}

	rec := ts.do(t, http.MethodPost, "/api/v1/captures", CaptureRequest{Data: "/9j/"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var captured models.CapturedPhoto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &captured))
	assert.Regexp(t, `^\d+\.jpeg$`, captured.Path)
	assert.FileExists(t, filepath.Join(ts.cache, ts.deviceID, captured.Path))

	rec = ts.do(t, http.MethodPost, "/api/v1/photos", captured, hybrid)
	require.Equal(t, http.StatusOK, rec.Code)
	photo := decodePhoto(t, rec)
	assert.True(t, strings.HasPrefix(photo.WebviewPath, "https://laser.bikeaction.org/_capacitor_file_/"), photo.WebviewPath)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos/"+photo.Filepath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", decodePhoto(t, rec).WebviewPath)

	rec = ts.do(t, http.MethodPost, "/api/v1/captures", CaptureRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhotoHandler_NativePathOutsideCaptureArea(t *testing.T) {
	ts := newTestServer(t)
	hybrid := map[string]string{"X-Platform": "hybrid"}

	secret := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("DB_PASSWORD=hunter2"), 0o600))

	other := ts.register(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ts.cache, other.ID), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ts.cache, other.ID, "theirs.jpeg"), []byte{0xff, 0xd8, 0xff}, 0o644))

	for _, p := range []string{
		secret,
		"file://" + filepath.ToSlash(secret),
		"../../" + filepath.Base(filepath.Dir(secret)) + "/secret.txt",
		"../" + other.ID + "/theirs.jpeg",
	} {
		rec := ts.do(t, http.MethodPost, "/api/v1/photos", models.CapturedPhoto{Path: p}, hybrid)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "path %q", p)
		assert.NotContains(t, rec.Body.String(), "hunter2")
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	assert.JSONEq(t, `{"photos":[],"total":0}`, rec.Body.String())
}

func TestPhotoHandler_DevicesAreIsolated(t *testing.T) {
	alice := newTestServer(t)
	bob := alice.as(alice.register(t))

	rec := alice.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader, Filename: "a.jpeg"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = bob.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"photos":[],"total":0}`, rec.Body.String())

	rec = bob.do(t, http.MethodGet, "/api/v1/photos/a.jpeg", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = bob.do(t, http.MethodDelete, "/api/v1/photos/a.jpeg", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = bob.do(t, http.MethodGet, "/api/v1/photos/..%2F"+alice.deviceID+"%2Fa.jpeg", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = alice.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	assert.JSONEq(t, `{"photos":["a.jpeg"],"total":1}`, rec.Body.String())

	rec = alice.do(t, http.MethodGet, "/api/v1/photos/a.jpeg", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPhotoHandler_NestedFilenames(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader, Filename: "albums/2024/a.jpeg"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "albums/2024/a.jpeg", decodePhoto(t, rec).Filepath)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos/albums/2024/a.jpeg", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "albums/2024/a.jpeg", decodePhoto(t, rec).Filepath)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos/albums%2F2024%2Fa.jpeg", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/photos/albums/2024/a.jpeg", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos/albums/2024/a.jpeg", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPhotoHandler_ExpandSkipsMissingFiles(t *testing.T) {
	ts := newTestServer(t)

	for _, name := range []string{"a.jpeg", "b.jpeg"} {
		rec := ts.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader, Filename: name}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.NoError(t, os.Remove(filepath.Join(ts.root, ts.deviceID, "a.jpeg")))

	rec := ts.do(t, http.MethodGet, "/api/v1/photos?expand=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Photos []models.UserPhoto `json:"photos"`
		Total  int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Photos, 1)
	assert.Equal(t, "b.jpeg", body.Photos[0].Filepath)

	rec = ts.do(t, http.MethodGet, "/api/v1/photos", nil, nil)
	assert.JSONEq(t, `{"photos":["b.jpeg"],"total":1}`, rec.Body.String())
}

func TestPhotoHandler_SavePictureFromWebPath(t *testing.T) {
	ts := newTestServer(t)

	webPath := "data:image/png;base64," + pngHeader
	rec := ts.do(t, http.MethodPost, "/api/v1/photos", models.CapturedPhoto{WebPath: webPath, Format: "png"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, webPath, decodePhoto(t, rec).WebviewPath)
}

func TestPhotoHandler_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		target  string
		body    interface{}
		headers map[string]string
		status  int
	}{
		{"malformed json", "/api/v1/photos/base64", "{", nil, http.StatusBadRequest},
		{"missing data", "/api/v1/photos/base64", SaveBase64Request{Filename: "a.jpeg"}, nil, http.StatusBadRequest},
		{"invalid base64", "/api/v1/photos/base64", SaveBase64Request{Data: "***"}, nil, http.StatusBadRequest},
		{"no web path", "/api/v1/photos", models.CapturedPhoto{}, nil, http.StatusBadRequest},
		{"no native path", "/api/v1/photos", models.CapturedPhoto{WebPath: "data:,x"}, map[string]string{"X-Platform": "hybrid"}, http.StatusBadRequest},
		{"loopback web path", "/api/v1/photos", models.CapturedPhoto{WebPath: "http://127.0.0.1:1/x.jpeg"}, nil, http.StatusBadRequest},
		{"metadata web path", "/api/v1/photos", models.CapturedPhoto{WebPath: "http://169.254.169.254/latest/meta-data/"}, nil, http.StatusBadRequest},
		{"file web path", "/api/v1/photos", models.CapturedPhoto{WebPath: "file:///etc/passwd"}, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.target, tt.body, tt.headers)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAppInfoAndWebAssets(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/app", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"app_id":"org.bikeaction.laser"`)
	assert.Contains(t, rec.Body.String(), `"hostname":"laser.bikeaction.org"`)

	rec = ts.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Laser Vision")
}

func TestWebSocket_PhotoEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + url.QueryEscape(ts.token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// A pong means the connection is registered
	require.NoError(t, conn.WriteJSON(models.Event{Type: models.EventPing, Timestamp: 42}))
	var pong models.Event
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, models.EventPong, pong.Type)
	assert.Equal(t, int64(42), pong.Timestamp)

	rec := ts.do(t, http.MethodPost, "/api/v1/photos/base64", SaveBase64Request{Data: pngHeader, Filename: "ws.jpeg"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var saved models.Event
	require.NoError(t, conn.ReadJSON(&saved))
	assert.Equal(t, models.EventPhotoSaved, saved.Type)
	assert.Equal(t, "ws.jpeg", saved.Filepath)

	require.NoError(t, conn.WriteJSON(models.Event{Type: "bogus"}))
	var unknown models.Event
	require.NoError(t, conn.ReadJSON(&unknown))
	assert.Equal(t, models.EventError, unknown.Type)
}

func TestWebSocket_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	ts.token = ""
	rec := ts.do(t, http.MethodGet, "/ws", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/ws?token=garbage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
