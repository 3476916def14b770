package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/krishkalaria12/pix-stash/ai"
	"github.com/krishkalaria12/pix-stash/auth"
	"github.com/krishkalaria12/pix-stash/config"
	handler "github.com/krishkalaria12/pix-stash/handlers"
	"github.com/krishkalaria12/pix-stash/middleware"
	"github.com/krishkalaria12/pix-stash/models"
	"github.com/krishkalaria12/pix-stash/repository"
	"github.com/krishkalaria12/pix-stash/router"
	"github.com/krishkalaria12/pix-stash/storage"
)

// fakeObjectStore keeps blobs in a map and mimics the adapter's key/URL
// derivation closely enough for the routes.
type fakeObjectStore struct {
	objects   map[string][]byte
	uploads   int
	uploadErr error
	deleteErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}}
}

func (f *fakeObjectStore) Upload(ctx context.Context, file io.Reader, size int64, contentType, originalName string, ownerID uint) (*storage.UploadResult, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	f.uploads++
	key := fmt.Sprintf("%d/blob-%d", ownerID, f.uploads)
	f.objects[key] = data
	return &storage.UploadResult{
		Key:              key,
		URL:              "https://pix.s3.us-east-1.amazonaws.com/" + key,
		OriginalFilename: originalName,
		Size:             size,
	}, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

// fakeAnalyzer echoes the prompt so tests can see it round-trip through the
// routes into ai_description.
type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(ctx context.Context, imageURL, customPrompt string) string {
	if customPrompt == "" {
		return "described: " + imageURL
	}
	return "echo: " + customPrompt
}

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	store   *fakeObjectStore
	authSvc *auth.Service
	handler *handler.ImageHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Image{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := &config.Config{
		JWTSecret: "test-secret",
		AppURL:    "http://localhost:3000",
	}

	users := repository.NewUserRepository(db)
	images := repository.NewImageRepository(db)
	authSvc := auth.NewService(cfg, users)
	store := newFakeObjectStore()

	imageHandler := &handler.ImageHandler{
		Images:  images,
		Users:   users,
		Storage: store,
		AI:      fakeAnalyzer{},
		Log:     zerolog.Nop(),
	}
	authHandler := &handler.AuthHandler{Users: users, Auth: authSvc, Log: zerolog.Nop()}

	app := fiber.New()
	router.SetupRoutes(app, authHandler, imageHandler, middleware.AuthMiddleware(authSvc))

	return &testEnv{app: app, db: db, store: store, authSvc: authSvc, handler: imageHandler}
}

func (e *testEnv) createUser(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)

	user := &models.User{Username: username, Email: username + "@example.com", Password: hash}
	require.NoError(t, e.db.Create(user).Error)

	token, err := e.authSvc.IssueToken(user)
	require.NoError(t, err)
	return user, token
}

func uploadRequest(t *testing.T, token, filename, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if filename != "" || data != nil {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
		hdr.Set("Content-Type", contentType)
		part, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func jsonRequest(method, target, token string, body any) *http.Request {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type imageJSON struct {
	ID               uint    `json:"id"`
	Filename         string  `json:"filename"`
	OriginalFilename string  `json:"original_filename"`
	S3URL            string  `json:"s3_url"`
	ContentType      string  `json:"content_type"`
	Size             *int64  `json:"size"`
	AIDescription    *string `json:"ai_description"`
	UploadedAt       string  `json:"uploaded_at"`
	UserID           uint    `json:"user_id"`
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestUploadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	user, token := env.createUser(t, "alice")

	payload := bytes.Repeat([]byte{0xAB}, 1024)
	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", payload, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Message string    `json:"message"`
		Image   imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)

	assert.Equal(t, "Image uploaded successfully", created.Message)
	assert.Equal(t, user.ID, created.Image.UserID)
	assert.Equal(t, "cat.jpg", created.Image.OriginalFilename)
	assert.Equal(t, "image/jpeg", created.Image.ContentType)
	require.NotNil(t, created.Image.Size)
	assert.Equal(t, int64(1024), *created.Image.Size)
	assert.Nil(t, created.Image.AIDescription)
	assert.NotEmpty(t, created.Image.UploadedAt)

	// immediately visible through list and get
	resp, err = env.app.Test(jsonRequest(http.MethodGet, "/api/images", token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed struct {
		Images []imageJSON `json:"images"`
	}
	decodeBody(t, resp, &listed)
	require.Len(t, listed.Images, 1)
	assert.Equal(t, created.Image.ID, listed.Images[0].ID)

	resp, err = env.app.Test(jsonRequest(http.MethodGet, fmt.Sprintf("/api/images/%d", created.Image.ID), token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var fetched imageJSON
	decodeBody(t, resp, &fetched)
	assert.Equal(t, created.Image.Filename, fetched.Filename)
	assert.Equal(t, int64(1024), *fetched.Size)
	assert.Nil(t, fetched.AIDescription)

	// blob actually landed in the store
	assert.Len(t, env.store.objects, 1)
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	resp, err := env.app.Test(uploadRequest(t, token, "notes.txt", "text/plain", []byte("hi"), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "File must be an image", body.Error)

	// nothing persisted anywhere
	assert.Empty(t, env.store.objects)
	var count int64
	env.db.Model(&models.Image{}).Count(&count)
	assert.Zero(t, count)
}

func TestUploadMissingFilePart(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	resp, err := env.app.Test(uploadRequest(t, token, "", "", nil, map[string]string{"analyze": "false"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUploadUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	token, err := env.authSvc.IssueToken(&models.User{ID: 999, Username: "ghost", Email: "ghost@example.com"})
	require.NoError(t, err)

	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "User not found", body.Error)
}

func TestUploadStorageFailureCreatesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")
	env.store.uploadErr = fmt.Errorf("bucket unavailable")

	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var count int64
	env.db.Model(&models.Image{}).Count(&count)
	assert.Zero(t, count)
}

func TestUploadWithSynchronousAnalysis(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	fields := map[string]string{"analyze": "true", "prompt": "count the cats"}
	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, fields), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)
	require.NotNil(t, created.Image.AIDescription)
	assert.Contains(t, *created.Image.AIDescription, "count the cats")
}

func TestDeleteRemovesRecordAndBlob(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	var created struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)

	resp, err = env.app.Test(jsonRequest(http.MethodDelete, fmt.Sprintf("/api/images/%d", created.Image.ID), token, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Empty(t, env.store.objects)

	resp, err = env.app.Test(jsonRequest(http.MethodGet, fmt.Sprintf("/api/images/%d", created.Image.ID), token, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(http.MethodGet, "/api/images", token, nil), -1)
	require.NoError(t, err)
	var listed struct {
		Images []imageJSON `json:"images"`
	}
	decodeBody(t, resp, &listed)
	assert.Empty(t, listed.Images)
}

func TestDeleteBlobFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	var created struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)

	env.store.deleteErr = fmt.Errorf("access denied")
	resp, err = env.app.Test(jsonRequest(http.MethodDelete, fmt.Sprintf("/api/images/%d", created.Image.ID), token, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	resp, err = env.app.Test(jsonRequest(http.MethodGet, fmt.Sprintf("/api/images/%d", created.Image.ID), token, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestForeignRecordsLookMissing(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.createUser(t, "alice")
	_, bobToken := env.createUser(t, "bob")

	resp, err := env.app.Test(uploadRequest(t, aliceToken, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	var created struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)
	target := fmt.Sprintf("/api/images/%d", created.Image.ID)

	for _, req := range []*http.Request{
		jsonRequest(http.MethodGet, target, bobToken, nil),
		jsonRequest(http.MethodDelete, target, bobToken, nil),
		jsonRequest(http.MethodPost, target+"/analyze", bobToken, fiber.Map{"prompt": "hi"}),
	} {
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, "%s %s", req.Method, req.URL.Path)
	}

	// alice still sees her record
	resp, err = env.app.Test(jsonRequest(http.MethodGet, target, aliceToken, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAnalyzePersistsDescription(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	var created struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)
	target := fmt.Sprintf("/api/images/%d", created.Image.ID)

	resp, err = env.app.Test(jsonRequest(http.MethodPost, target+"/analyze", token, fiber.Map{"prompt": "count the cats"}), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var analyzed struct {
		Message string    `json:"message"`
		Image   imageJSON `json:"image"`
	}
	decodeBody(t, resp, &analyzed)
	assert.Equal(t, "Image analyzed successfully", analyzed.Message)
	require.NotNil(t, analyzed.Image.AIDescription)
	assert.Contains(t, *analyzed.Image.AIDescription, "count the cats")

	// the description survived into the record
	resp, err = env.app.Test(jsonRequest(http.MethodGet, target, token, nil), -1)
	require.NoError(t, err)
	var fetched imageJSON
	decodeBody(t, resp, &fetched)
	require.NotNil(t, fetched.AIDescription)
	assert.Contains(t, *fetched.AIDescription, "count the cats")
}

func TestAnalyzeWithoutConfiguredBackend(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(t, "alice")

	// swap in the real analyzer with no API key configured
	env.handler.AI = ai.New(&config.Config{}, nil, zerolog.Nop())

	resp, err := env.app.Test(uploadRequest(t, token, "cat.jpg", "image/jpeg", []byte{0x01}, nil), -1)
	require.NoError(t, err)
	var created struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &created)

	target := fmt.Sprintf("/api/images/%d/analyze", created.Image.ID)
	resp, err = env.app.Test(jsonRequest(http.MethodPost, target, token, nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var analyzed struct {
		Image imageJSON `json:"image"`
	}
	decodeBody(t, resp, &analyzed)
	require.NotNil(t, analyzed.Image.AIDescription)
	assert.Equal(t, "AI image analysis is not configured.", *analyzed.Image.AIDescription)
}

func TestImageRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, req := range []*http.Request{
		jsonRequest(http.MethodGet, "/api/images", "", nil),
		jsonRequest(http.MethodPost, "/api/images", "", nil),
		jsonRequest(http.MethodGet, "/api/images/1", "", nil),
		jsonRequest(http.MethodDelete, "/api/images/1", "", nil),
	} {
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "%s %s", req.Method, req.URL.Path)
	}

	resp, err := env.app.Test(jsonRequest(http.MethodGet, "/api/images", "not-a-token", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
