package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"pai-docqa-go/internal/config"
	"pai-docqa-go/internal/model"
	"pai-docqa-go/internal/pipeline"
	"pai-docqa-go/internal/repository"
	"pai-docqa-go/internal/service"
	"pai-docqa-go/internal/vectorindex"
	"pai-docqa-go/pkg/database"
	"pai-docqa-go/pkg/embedding"
	"pai-docqa-go/pkg/llm"
	"pai-docqa-go/pkg/storage"
	"pai-docqa-go/pkg/tasks"
	"pai-docqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLLM struct{ answer string }

func (s staticLLM) Generate(context.Context, []llm.Message, *llm.GenerationParams) (string, error) {
	return s.answer, nil
}

func (s staticLLM) StreamChatMessages(_ context.Context, _ []llm.Message, _ *llm.GenerationParams, w llm.MessageWriter) error {
	for _, part := range strings.SplitAfter(s.answer, " ") {
		if err := w.WriteMessage(websocket.TextMessage, []byte(part)); err != nil {
			return err
		}
	}
	return nil
}

type testApp struct {
	router *gin.Engine
	queue  *tasks.MemoryQueue
	worker *pipeline.Worker
}

func newTestApp(t *testing.T, jwtManager *token.JWTManager) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	objects, err := storage.NewLocalStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	db, err := database.NewSQLite(filepath.Join(dir, "docqa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	docs, err := repository.NewSQLiteDocumentRepository(context.Background(), db)
	require.NoError(t, err)

	chunks := repository.NewChunkStore(objects)
	queue := tasks.NewMemoryQueue(8)
	builder := vectorindex.NewBuilder(embedding.NewHashingClient(512), vectorindex.NewMemoryEngine(), 2)
	gen := staticLLM{answer: "Ice carves U-shaped valleys."}

	querySvc := service.NewQueryService(chunks, builder, gen, 3)
	themeSvc := service.NewThemeService(chunks, builder, gen, config.ThemeConfig{TopN: 5, ExpandK: 10, ExpandMinScore: 0.3})
	docSvc := service.NewDocumentService(docs, chunks, objects, queue)
	router := NewRouter(Services{
		Documents: docSvc,
		Analysis:  service.NewAnalysisService(docs, querySvc, themeSvc, 2),
		Chat:      service.NewChatService(querySvc),
	}, jwtManager)

	processor := pipeline.NewProcessor(objects, pipeline.NewExtractor(nil, nil, 0), chunks)
	return &testApp{router: router, queue: queue, worker: pipeline.NewWorker(queue, processor, docs)}
}

// drain 处理所有已入队的任务，队列清空后停止消费但不关闭队列。
func (a *testApp) drain(t *testing.T) {
	t.Helper()
	if a.queue.Len() == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := a.queue.Consume(ctx, func(_ context.Context, task tasks.IngestTask) error {
		err := a.worker.Handle(context.Background(), task)
		if a.queue.Len() == 0 {
			cancel()
		}
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
}

// docView 是响应中文档视图的子集，时间字段按字符串解码。
type docView struct {
	DocID       string               `json:"docId"`
	Status      model.DocumentStatus `json:"status"`
	ChunksCount int                  `json:"chunksCount"`
	CreatedAt   string               `json:"createdAt"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func uploadRequest(t *testing.T, name, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const geoDoc = "Rivers carry sediment downstream to wide deltas on the coast.\f" +
	"Glaciers carve valleys into a U shape as ice grinds the bedrock below.\f" +
	"Volcanoes build new islands from lava that cools into dark basalt rock."

func (a *testApp) uploadAndProcess(t *testing.T, name, content string) string {
	t.Helper()
	w, env := a.do(t, uploadRequest(t, name, content))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		DocID string `json:"docId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	a.drain(t)
	return data.DocID
}

func TestRouter_Healthz(t *testing.T) {
	app := newTestApp(t, nil)
	w, _ := app.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_UploadListStatusContent(t *testing.T) {
	app := newTestApp(t, nil)
	docID := app.uploadAndProcess(t, "geo.txt", geoDoc)

	w, env := app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+docID+"/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var view docView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.StatusCompleted, view.Status)
	assert.Equal(t, 3, view.ChunksCount)
	assert.NotEmpty(t, view.CreatedAt)

	w, env = app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []docView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	w, env = app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+docID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var content struct {
		Document docView `json:"document"`
		Content  string  `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &content))
	assert.Equal(t, docID, content.Document.DocID)
	assert.Contains(t, content.Content, "--- Document Chunk 3 ---")
}

func TestRouter_UploadValidation(t *testing.T) {
	app := newTestApp(t, nil)
	w, _ := app.do(t, uploadRequest(t, "virus.exe", "MZ"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("x"))
	w, _ = app.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing/status", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Query(t *testing.T) {
	app := newTestApp(t, nil)
	docID := app.uploadAndProcess(t, "geo.txt", geoDoc)

	body := `{"query":"How do glaciers carve valleys?","doc_ids":["` + docID + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w, env := app.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.DocumentResults, 1)
	assert.Equal(t, "Ice carves U-shaped valleys.", res.DocumentResults[0].Answer)
	assert.True(t, strings.HasPrefix(res.DocumentResults[0].Citation, "Page 2, Chunk 2"))
	assert.Equal(t, "Single Document Analysis", res.Themes[0].Name)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = app.do(t, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Auth(t *testing.T) {
	jwtManager := token.NewJWTManager("s3cret", 1)
	app := newTestApp(t, jwtManager)

	w, _ := app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set("Authorization", "Token abc")
	w, _ = app.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := jwtManager.GenerateToken("tester", "")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w, _ = app.do(t, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents?token="+tok, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// 健康检查不需要鉴权
	w, _ = app.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ChatWebsocket(t *testing.T) {
	app := newTestApp(t, nil)
	docID := app.uploadAndProcess(t, "geo.txt", geoDoc)

	srv := httptest.NewServer(app.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/documents/" + docID + "/chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("How do glaciers carve valleys?")))
	var answer strings.Builder
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &frame))
		if chunk, ok := frame["chunk"].(string); ok {
			answer.WriteString(chunk)
			continue
		}
		assert.Equal(t, "completion", frame["type"])
		assert.Equal(t, 0.95, frame["confidence"])
		assert.True(t, strings.HasPrefix(frame["citation"].(string), "Page 2, Chunk 2"))
		break
	}
	assert.Equal(t, "Ice carves U-shaped valleys.", answer.String())
}

func TestRouter_ChatUnknownDocument(t *testing.T) {
	app := newTestApp(t, nil)
	w, _ := app.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/nope/chat", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
