package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/chat-search/internal/core/chunk"
	"github.com/jinford/chat-search/internal/core/index"
	"github.com/jinford/chat-search/internal/core/rag"
	"github.com/jinford/chat-search/internal/core/transcript"
)

type fakeEmbedder struct{}

func (fakeEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

type fakeExpander struct{}

func (fakeExpander) Expand(_ context.Context, _ string) ([]string, error) {
	return []string{"q1", "q2", "q3", "q4", "q5"}, nil
}

type fakeCompleter struct {
	tokens []string
	err    error
}

func (c *fakeCompleter) StreamCompletion(_ context.Context, _ []rag.ChatMessage, onToken func(string)) error {
	for _, tok := range c.tokens {
		onToken(tok)
	}
	return c.err
}

func newTestServer(t *testing.T, completer rag.CompletionStreamer) *Server {
	t.Helper()
	if completer == nil {
		completer = &fakeCompleter{tokens: []string{"answer"}}
	}
	svc := rag.NewService(fakeExpander{}, completer)
	return NewServer(context.Background(), chunk.New(), fakeEmbedder{}, svc)
}

func sampleTranscript() string {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "[14:%02d, 13.04.18] Alice: message number %d\n", i, i)
	}
	return sb.String()
}

func uploadTranscript(t *testing.T, s *Server) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(sampleTranscript()))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadTranscriptRawBody(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader(sampleTranscript()))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var tr transcript.Transcript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Len(t, tr.Messages, 30)
	assert.Equal(t, []string{"Alice"}, tr.Participants)
	assert.NotNil(t, s.currentSession())
}

func TestUploadTranscriptMultipart(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "chat.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(sampleTranscript()))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcript", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadTranscriptRejectsNonTxt(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "chat.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte(sampleTranscript()))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/transcript", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Only .txt files are supported", resp.Detail)
}

func TestUploadTranscriptUnparseable(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcript", strings.NewReader("not a chat export at all"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Detail, "No messages found")
}

func TestUploadReplacesPreviousSession(t *testing.T) {
	s := newTestServer(t, nil)

	uploadTranscript(t, s)
	first := s.currentSession()

	uploadTranscript(t, s)
	second := s.currentSession()

	assert.NotEqual(t, first.ID(), second.ID())
}

func TestSearchWithoutUpload(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"anything"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSearchReturnsRankedResults(t *testing.T) {
	s := newTestServer(t, nil)
	uploadTranscript(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"message number"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.LessOrEqual(t, len(resp.Results), index.DefaultTopK)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newTestServer(t, nil)
	uploadTranscript(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"  "}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexTriggerAndStatus(t *testing.T) {
	s := newTestServer(t, nil)
	uploadTranscript(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/index", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// バックグラウンド構築の完了を待ってから状態を確認
	require.Eventually(t, func() bool {
		return s.currentSession().Indexed()
	}, 5*time.Second, 10*time.Millisecond)

	req = httptest.NewRequest(http.MethodGet, "/api/index/status", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status indexStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, string(index.StateReady), status.State)
	assert.Equal(t, status.Progress.Total, status.Progress.Completed)
}

func TestIndexStatusWithoutUpload(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/index/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChatStreamsSSE(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{tokens: []string{"Hello", " world"}})
	uploadTranscript(t, s)

	body := `{"messages":[{"role":"user","content":"say hello"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	got := rec.Body.String()
	assert.Contains(t, got, `data: {"content":"Hello"}`)
	assert.Contains(t, got, `data: {"content":" world"}`)
	assert.True(t, strings.HasSuffix(got, "data: [DONE]\n\n"))
}

func TestChatStreamErrorEmitsErrorFrame(t *testing.T) {
	s := newTestServer(t, &fakeCompleter{
		tokens: []string{"partial"},
		err:    errors.New("connection reset"),
	})
	uploadTranscript(t, s)

	body := `{"messages":[{"role":"user","content":"question"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	got := rec.Body.String()
	// 出力済みの部分トークンは残し、エラーフレームで終端する（DONEなし）
	assert.Contains(t, got, `data: {"content":"partial"}`)
	assert.Contains(t, got, `"error"`)
	assert.NotContains(t, got, "[DONE]")
}

func TestChatWithoutMessages(t *testing.T) {
	s := newTestServer(t, nil)
	uploadTranscript(t, s)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
