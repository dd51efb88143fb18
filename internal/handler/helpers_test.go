package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"clouddrive/internal/auth"
	"clouddrive/internal/config"
	"clouddrive/internal/domain"
	"clouddrive/internal/preview"
	"clouddrive/internal/repository"
	"clouddrive/internal/service"
	"clouddrive/internal/storage"
)

const testUser = "user-1"

type serverOptions struct {
	wrapStore      func(storage.Store) storage.Store
	maxUploadBytes int64
}

type testServer struct {
	t       *testing.T
	router  http.Handler
	token   string
	tempDir string
}

// recordJSON - запись в том виде, в котором её видит клиент
type recordJSON struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Type     string   `json:"type"`
	Size     int64    `json:"size"`
	IsFolder bool     `json:"isFolder"`
	ParentID *string  `json:"parentId"`
	Tags     []string `json:"tags"`
	URL      string   `json:"url"`
	Category string   `json:"category"`
}

type uploadJSON struct {
	Success         bool                     `json:"success"`
	FilesProcessed  int                      `json:"filesProcessed"`
	FilesSuccessful int                      `json:"filesSuccessful"`
	Files           []map[string]interface{} `json:"files"`
	File            *recordJSON              `json:"file"`
	Error           string                   `json:"error"`
}

type folderJSON struct {
	Folder *recordJSON  `json:"folder"`
	Items  []recordJSON `json:"items"`
}

// stubPreviews отдаёт превью только для id "img"
type stubPreviews struct{}

func (stubPreviews) GetPreview(_ context.Context, _ string, id string) ([]byte, error) {
	if id == "img" {
		return []byte("jpeg-bytes"), nil
	}
	return nil, preview.ErrUnsupported
}

// brokenStore проваливает запись любого блоба
type brokenStore struct {
	storage.Store
}

func (brokenStore) Write(_ context.Context, _ io.Reader, name string) (*storage.Object, error) {
	return nil, &domain.StorageError{Op: "write", Name: name, Err: errors.New("disk full")}
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	root := t.TempDir()
	logger := zaptest.NewLogger(t)

	dbCfg := config.DatabaseConfig{Driver: "sqlite3", Path: filepath.Join(root, "test.db")}
	if err := repository.Migrate(dbCfg, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	db, err := repository.Connect(context.Background(), dbCfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fileStore, err := storage.NewFileStore(filepath.Join(root, "blobs"), logger)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	var blobs storage.Store = fileStore
	if opts.wrapStore != nil {
		blobs = opts.wrapStore(fileStore)
	}

	tempDir := filepath.Join(root, "blobs", storage.TempDir)
	fileRepo := repository.NewFileRepository(db)
	fileService := service.NewFileService(fileRepo, blobs, logger)
	materializer := service.NewFolderMaterializer(fileRepo, blobs, logger)
	ingestor := service.NewUploadIngestor(fileRepo, blobs, materializer, logger)
	archives, err := service.NewArchiveBuilder(fileRepo, blobs, config.ArchiveConfig{CompressionLevel: 6}, tempDir, logger)
	if err != nil {
		t.Fatalf("NewArchiveBuilder: %v", err)
	}

	verifier := auth.NewVerifier("test-secret", "clouddrive")
	token, err := verifier.IssueToken(testUser, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	handlers := Handlers{
		Files:     NewFileHandler(fileService, ingestor, archives, stubPreviews{}, verifier, opts.maxUploadBytes, logger),
		Folders:   NewFolderHandler(fileService, verifier, logger),
		Favorites: NewFavoriteHandler(service.NewFavoriteService(repository.NewFavoriteRepository(db), fileRepo), verifier, logger),
		Trash:     NewTrashHandler(service.NewTrashService(repository.NewTrashRepository(db), logger), verifier, logger),
		Health:    NewHealthHandler(db, logger),
	}

	return &testServer{
		t:       t,
		router:  NewRouter(handlers, time.Minute, logger),
		token:   token,
		tempDir: tempDir,
	}
}

func (s *testServer) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(method, path string, payload interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		s.t.Fatalf("Marshal: %v", err)
	}
	return s.do(method, path, bytes.NewReader(data), "application/json")
}

type formFile struct {
	name    string
	content string
}

// upload отправляет multipart форму с файлами и полями
func (s *testServer) upload(files []formFile, fields map[string]string) (*httptest.ResponseRecorder, uploadJSON) {
	s.t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			s.t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.name)
		if err != nil {
			s.t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := io.WriteString(part, f.content); err != nil {
			s.t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		s.t.Fatalf("Close: %v", err)
	}

	rec := s.do(http.MethodPost, "/v1/upload", &buf, mw.FormDataContentType())

	var resp uploadJSON
	if rec.Header().Get("Content-Type") == "application/json" {
		decode(s.t, rec, &resp)
	}
	return rec, resp
}

// mkdir создаёт папку через API и возвращает её запись
func (s *testServer) mkdir(name string, parentID *string) recordJSON {
	s.t.Helper()

	rec := s.doJSON(http.MethodPost, "/v1/folders", map[string]interface{}{"name": name, "parentId": parentID})
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("POST /v1/folders %q: статус %d, тело %s", name, rec.Code, rec.Body.String())
	}
	var folder recordJSON
	decode(s.t, rec, &folder)
	return folder
}

func (s *testServer) list(parentID string) folderJSON {
	s.t.Helper()

	path := "/v1/files"
	if parentID != "" {
		path += "?parentId=" + parentID
	}
	rec := s.do(http.MethodGet, path, nil, "")
	if rec.Code != http.StatusOK {
		s.t.Fatalf("GET %s: статус %d, тело %s", path, rec.Code, rec.Body.String())
	}
	var content folderJSON
	decode(s.t, rec, &content)
	return content
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("не удалось разобрать ответ %q: %v", rec.Body.String(), err)
	}
}

func itemNames(items []recordJSON) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}
