package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jinford/chat-search/internal/core/index"
	"github.com/jinford/chat-search/internal/core/rag"
	"github.com/jinford/chat-search/internal/core/transcript"
)

// maxUploadBytes はアップロードサイズの上限（64MiB）
const maxUploadBytes = 64 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

// handleUploadTranscript はエクスポートファイルを解析して
// 新しいセッションを開始する
func (s *Server) handleUploadTranscript(w http.ResponseWriter, r *http.Request) {
	raw, filename, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filename != "" && !strings.HasSuffix(strings.ToLower(filename), ".txt") {
		writeError(w, http.StatusBadRequest, "Only .txt files are supported")
		return
	}

	tr, err := transcript.Parse(raw)
	if err != nil {
		if errors.Is(err, transcript.ErrEmptyTranscript) {
			writeError(w, http.StatusUnprocessableEntity, "No messages found. Make sure the file is a WhatsApp chat export.")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to parse transcript")
		return
	}

	opts := []index.SessionOption{index.WithSessionLogger(s.logger)}
	if s.cache != nil {
		opts = append(opts, index.WithCache(s.cache))
	}
	sess := index.NewSession(raw, tr, s.chunker, s.embedder, opts...)
	s.replaceSession(sess)

	s.logger.Info("transcript uploaded",
		"session_id", sess.ID(),
		"messages", len(tr.Messages),
		"participants", len(tr.Participants),
		"chunks", sess.ChunkCount(),
	)
	writeJSON(w, http.StatusOK, tr)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type searchResponse struct {
	Results []index.Result `json:"results"`
}

// handleSearch は現在のセッションに対する意味検索を実行する
// 必要であればEmbedding構築を先に行う
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeError(w, http.StatusConflict, "No transcript uploaded")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is empty")
		return
	}

	if err := s.ensureIndexed(r.Context(), sess); err != nil {
		s.logger.Error("indexing failed", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to index transcript")
		return
	}

	results, err := sess.SearchText(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusBadGateway, "Search failed")
		return
	}
	if results == nil {
		results = []index.Result{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

// handleIndexTrigger はバックグラウンドでEmbedding構築を開始する
// 実行中の構築がある場合は集約される（追加の実行は起きない）
func (s *Server) handleIndexTrigger(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeError(w, http.StatusConflict, "No transcript uploaded")
		return
	}

	// リクエストのキャンセルに巻き込まれないようベースコンテキストで実行
	go func() {
		if err := sess.EnsureEmbeddings(s.baseCtx, s.logProgress); err != nil {
			s.logger.Error("background indexing failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, indexStatusResponse{
		State:    string(sess.State()),
		Progress: sess.Progress(),
	})
}

type indexStatusResponse struct {
	State    string         `json:"state"`
	Progress index.Progress `json:"progress"`
}

// handleIndexStatus は現在のインデックス状態と進捗を返す
func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeError(w, http.StatusConflict, "No transcript uploaded")
		return
	}
	writeJSON(w, http.StatusOK, indexStatusResponse{
		State:    string(sess.State()),
		Progress: sess.Progress(),
	})
}

type chatRequest struct {
	Messages []rag.ChatMessage `json:"messages"`
}

// handleChat は会話履歴に対するRAG回答をSSEでストリーミングする
//
// フレーム形式は data: <json>\n\n。成功時は最後に data: [DONE] を送り、
// ストリーム障害時は data: {"error": ...} で中断する（出力済みの
// 部分テキストはクライアント側でそのまま保持される）
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess := s.currentSession()
	if sess == nil {
		writeError(w, http.StatusConflict, "No transcript uploaded")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "No messages provided")
		return
	}

	if err := s.ensureIndexed(r.Context(), sess); err != nil {
		s.logger.Error("indexing failed", "error", err)
		writeError(w, http.StatusBadGateway, "Failed to index transcript")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	_, err := s.ragSvc.Ask(r.Context(), sess, req.Messages, func(token string) {
		writeSSE(w, map[string]string{"content": token})
		flusher.Flush()
	})
	if err != nil {
		s.logger.Error("chat completion failed", "error", err)
		writeSSE(w, map[string]string{"error": err.Error()})
		flusher.Flush()
		return
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// readUpload はmultipartまたは生ボディからアップロード内容を読み出す
func readUpload(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("missing file field")
		}
		defer file.Close()

		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read upload")
		}
		return raw, header.Filename, nil
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read request body")
	}
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("empty request body")
	}
	return raw, "", nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeSSE は1件のSSEフレームを書き出す
func writeSSE(w io.Writer, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
