// Package api exposes the voicebridge REST surface: credential issuance,
// the transcription proxy, and transcript persistence.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/voicebridge/voicebridge/internal/broker"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/pkg/events"
	"github.com/voicebridge/voicebridge/pkg/transcript"
)

const maxRequestBodySize = 10 << 20 // audio clips, 10 MiB

// Minter issues ephemeral realtime credentials. *broker.Broker implements it.
type Minter interface {
	Mint(ctx context.Context) (*broker.Credentials, error)
}

// Transcriber converts one audio clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// TranscriptStore persists conversations. *store.Repository implements it.
type TranscriptStore interface {
	CreateConversation(ctx context.Context, c *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	AppendMessages(ctx context.Context, conversationID string, batch []transcript.Utterance) error
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
	EndConversation(ctx context.Context, id string) error
}

// Handler provides the REST endpoints.
type Handler struct {
	minter      Minter
	transcriber Transcriber
	repo        TranscriptStore
	publisher   *events.Publisher
}

// NewHandler creates a new API handler.
func NewHandler(minter Minter, transcriber Transcriber, repo TranscriptStore, publisher *events.Publisher) *Handler {
	return &Handler{minter: minter, transcriber: transcriber, repo: repo, publisher: publisher}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.StartSession)
	mux.HandleFunc("POST /api/v1/transcriptions", h.Transcribe)
	mux.HandleFunc("POST /api/v1/transcripts", h.SaveTranscript)
	mux.HandleFunc("GET /api/v1/conversations/{id}", h.GetConversation)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// StartSession handles POST /api/v1/sessions: mints an ephemeral upstream
// session and opens a conversation record for its transcript.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := h.minter.Mint(ctx)
	if err != nil {
		switch {
		case errors.Is(err, broker.ErrNoActivePrompt):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, broker.ErrNoAPIKey):
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			// Upstream failures relay verbatim.
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	resp := SessionResponse{
		SessionToken: creds.SessionToken,
		ModelID:      creds.ModelID,
		Voice:        creds.Voice,
		Instructions: creds.Instructions,
	}

	if h.repo != nil {
		conv := &store.Conversation{
			PromptName: creds.PromptName,
			Model:      creds.ModelID,
			Voice:      creds.Voice,
		}
		if err := h.repo.CreateConversation(ctx, conv); err != nil {
			// The client falls back to a local conversation ID.
			slog.ErrorContext(ctx, "api: create conversation failed", slog.String("error", err.Error()))
		} else {
			resp.ConversationID = conv.ID
		}
	}

	if err := h.publisher.Emit(ctx, events.SessionMinted, resp.ConversationID, events.SessionMintedData{
		Model:  creds.ModelID,
		Voice:  creds.Voice,
		Prompt: creds.PromptName,
	}); err != nil {
		slog.WarnContext(ctx, "api: emit session.minted failed", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Transcribe handles POST /api/v1/transcriptions: multipart form with an
// `audio` field containing one bounded clip.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio field")
		return
	}
	defer file.Close()

	clip, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read audio: "+err.Error())
		return
	}

	// Clips from the capture pipeline arrive as minimal-header WAV; the
	// backends want raw PCM.
	if bytes.HasPrefix(clip, []byte("RIFF")) && len(clip) > 44 {
		clip = clip[44:]
	}

	text, err := h.transcriber.Transcribe(r.Context(), clip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TranscriptionResponse{Text: text})
}

// SaveTranscript handles POST /api/v1/transcripts.
func (h *Handler) SaveTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req transcript.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" || req.Messages == nil {
		writeError(w, http.StatusBadRequest, "conversationId and messages are required")
		return
	}

	// Clients fall back to a locally generated conversation ID when session
	// minting could not open a record; the first save opens it here so the
	// transcript stays readable.
	if _, err := h.repo.GetConversation(ctx, req.ConversationID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusInternalServerError, "load conversation: "+err.Error())
			return
		}
		conv := &store.Conversation{}
		conv.ID = req.ConversationID
		if err := h.repo.CreateConversation(ctx, conv); err != nil {
			writeError(w, http.StatusInternalServerError, "create conversation: "+err.Error())
			return
		}
	}

	if len(req.Messages) > 0 {
		if err := h.repo.AppendMessages(ctx, req.ConversationID, req.Messages); err != nil {
			writeError(w, http.StatusInternalServerError, "persist messages: "+err.Error())
			return
		}
		for _, u := range req.Messages {
			if err := h.publisher.Emit(ctx, events.UtteranceLogged, req.ConversationID, events.UtteranceLoggedData{
				Role:    string(u.Role),
				Content: u.Content,
				StartMs: u.StartMs,
				EndMs:   u.EndMs,
			}); err != nil {
				slog.WarnContext(ctx, "api: emit utterance.logged failed", slog.String("error", err.Error()))
			}
		}
	}

	if req.End {
		if err := h.repo.EndConversation(ctx, req.ConversationID); err != nil {
			slog.ErrorContext(ctx, "api: end conversation failed",
				slog.String("conversation_id", req.ConversationID),
				slog.String("error", err.Error()))
		}
		if err := h.publisher.Emit(ctx, events.ConversationEnded, req.ConversationID, nil); err != nil {
			slog.WarnContext(ctx, "api: emit conversation.ended failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, SaveResponse{OK: true})
}

// GetConversation handles GET /api/v1/conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conv, err := h.repo.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	rows, err := h.repo.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list messages: "+err.Error())
		return
	}

	resp := ConversationResponse{ID: conv.ID, Messages: make([]transcript.Utterance, 0, len(rows))}
	if conv.EndedAt.Valid {
		resp.EndedAt = conv.EndedAt.Time.Format(time.RFC3339)
	}
	for i := range rows {
		resp.Messages = append(resp.Messages, rows[i].Utterance())
	}

	writeJSON(w, http.StatusOK, resp)
}
