package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/voicebridge/voicebridge/internal/broker"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/pkg/audio"
	"github.com/voicebridge/voicebridge/pkg/transcript"
)

type fakeMinter struct {
	creds *broker.Credentials
	err   error
}

func (f *fakeMinter) Mint(context.Context) (*broker.Credentials, error) {
	return f.creds, f.err
}

type fakeTranscriber struct {
	text string
	err  error
	got  []byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []byte) (string, error) {
	f.got = pcm
	return f.text, f.err
}

type fakeStore struct {
	conversations map[string]*store.Conversation
	messages      map[string][]transcript.Utterance
	ended         map[string]bool
	createErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]transcript.Utterance),
		ended:         make(map[string]bool),
	}
}

func (f *fakeStore) CreateConversation(_ context.Context, c *store.Conversation) error {
	if f.createErr != nil {
		return f.createErr
	}
	if c.ID == "" {
		c.ID = "conv-test"
	}
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeStore) AppendMessages(_ context.Context, id string, batch []transcript.Utterance) error {
	f.messages[id] = append(f.messages[id], batch...)
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, id string) ([]store.Message, error) {
	var out []store.Message
	for i, u := range f.messages[id] {
		m := store.Message{
			ConversationID: id,
			Seq:            i,
			Role:           string(u.Role),
			Content:        u.Content,
		}
		if u.EndMs > 0 {
			m.StartMs = sql.NullInt64{Int64: u.StartMs, Valid: true}
			m.EndMs = sql.NullInt64{Int64: u.EndMs, Valid: true}
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) EndConversation(_ context.Context, id string) error {
	f.ended[id] = true
	if c, ok := f.conversations[id]; ok {
		c.EndedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}
	return nil
}

func newTestHandler(m Minter, tr Transcriber, st TranscriptStore) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(m, tr, st, nil).RegisterRoutes(mux)
	return mux
}

func TestStartSession(t *testing.T) {
	st := newFakeStore()
	mux := newTestHandler(&fakeMinter{creds: &broker.Credentials{
		SessionToken: "ek_123",
		ModelID:      "gpt-4o-realtime-preview-2024-12-17",
		Voice:        "alloy",
		Instructions: "be helpful",
		PromptName:   "default",
	}}, nil, st)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionToken != "ek_123" {
		t.Fatalf("token = %q, want ek_123", resp.SessionToken)
	}
	if resp.ConversationID == "" {
		t.Fatal("conversation ID missing")
	}
	if _, ok := st.conversations[resp.ConversationID]; !ok {
		t.Fatal("conversation not persisted")
	}
}

func TestStartSessionStoreFailureStillIssuesCredentials(t *testing.T) {
	st := newFakeStore()
	st.createErr = errors.New("db down")
	mux := newTestHandler(&fakeMinter{creds: &broker.Credentials{SessionToken: "ek_1"}}, nil, st)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite store failure", rec.Code)
	}
	var resp SessionResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ConversationID != "" {
		t.Fatalf("conversation ID = %q, want empty so the client falls back", resp.ConversationID)
	}
}

func TestStartSessionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no active prompt", broker.ErrNoActivePrompt, http.StatusBadRequest},
		{"no api key", broker.ErrNoAPIKey, http.StatusInternalServerError},
		{"upstream failure", errors.New("HTTP 401: invalid key"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestHandler(&fakeMinter{err: tt.err}, nil, newFakeStore())
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error == "" {
				t.Fatal("error body empty")
			}
		})
	}
}

func transcribeRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(payload)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestTranscribeStripsWAVHeader(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 1600)
	tr := &fakeTranscriber{text: "hello"}
	mux := newTestHandler(nil, tr, newFakeStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, transcribeRequest(t, audio.WAVFromPCM(pcm, 16000)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if !bytes.Equal(tr.got, pcm) {
		t.Fatalf("transcriber received %d bytes, want %d raw PCM bytes", len(tr.got), len(pcm))
	}
	var resp TranscriptionResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Text != "hello" {
		t.Fatalf("text = %q, want hello", resp.Text)
	}
}

func TestTranscribeEmptyTextIsValid(t *testing.T) {
	mux := newTestHandler(nil, &fakeTranscriber{text: ""}, newFakeStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, transcribeRequest(t, make([]byte, 3200)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp TranscriptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != "" {
		t.Fatalf("text = %q, want empty", resp.Text)
	}
}

func TestTranscribeMissingAudioField(t *testing.T) {
	mux := newTestHandler(nil, &fakeTranscriber{}, newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcriptions", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSaveTranscript(t *testing.T) {
	st := newFakeStore()
	mux := newTestHandler(nil, nil, st)

	body, _ := json.Marshal(transcript.SaveRequest{
		ConversationID: "conv-9",
		Messages: []transcript.Utterance{
			{Role: transcript.RoleUser, Content: "hi", StartMs: 0, EndMs: 800},
			{Role: transcript.RoleAssistant, Content: "hello"},
		},
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if len(st.messages["conv-9"]) != 2 {
		t.Fatalf("persisted = %d messages, want 2", len(st.messages["conv-9"]))
	}
	if st.ended["conv-9"] {
		t.Fatal("conversation ended without end marker")
	}
}

func TestSaveTranscriptEndMarker(t *testing.T) {
	st := newFakeStore()
	st.conversations["conv-9"] = &store.Conversation{}
	mux := newTestHandler(nil, nil, st)

	body, _ := json.Marshal(transcript.SaveRequest{
		ConversationID: "conv-9",
		Messages:       []transcript.Utterance{},
		End:            true,
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if !st.ended["conv-9"] {
		t.Fatal("conversation not marked ended")
	}
}

func TestSaveTranscriptOpensClientMintedConversation(t *testing.T) {
	st := newFakeStore()
	mux := newTestHandler(nil, nil, st)

	// No session-time record exists for a locally generated conversation ID;
	// the first save must open one.
	body, _ := json.Marshal(transcript.SaveRequest{
		ConversationID: "local-xid-123",
		Messages: []transcript.Utterance{
			{Role: transcript.RoleUser, Content: "hi", StartMs: 0, EndMs: 700},
		},
		End: true,
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if _, ok := st.conversations["local-xid-123"]; !ok {
		t.Fatal("conversation row not created on first save")
	}
	if !st.ended["local-xid-123"] {
		t.Fatal("conversation not marked ended")
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/local-xid-123", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d, want 200: saved transcript must be readable", rec.Code)
	}
	var resp ConversationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content != "hi" {
		t.Fatalf("messages = %+v", resp.Messages)
	}
}

func TestSaveTranscriptValidation(t *testing.T) {
	mux := newTestHandler(nil, nil, newFakeStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", strings.NewReader(`{"messages":[]}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing conversationId", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/transcripts", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", rec.Code)
	}
}

func TestGetConversation(t *testing.T) {
	st := newFakeStore()
	st.conversations["conv-7"] = &store.Conversation{
		EndedAt: sql.NullTime{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Valid: true},
	}
	st.messages["conv-7"] = []transcript.Utterance{
		{Role: transcript.RoleUser, Content: "hi", StartMs: 0, EndMs: 600},
	}
	mux := newTestHandler(nil, nil, st)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/conv-7", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp ConversationResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content != "hi" {
		t.Fatalf("messages = %+v", resp.Messages)
	}
	if resp.EndedAt == "" {
		t.Fatal("ended_at missing")
	}
}

func TestGetConversationNotFound(t *testing.T) {
	mux := newTestHandler(nil, nil, newFakeStore())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/conversations/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
