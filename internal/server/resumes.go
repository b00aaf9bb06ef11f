package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/backend"
)

const (
	// MaxResumeSize is the largest accepted resume upload
	MaxResumeSize = 10 << 20

	resumeTTL = 30 * time.Minute
)

var allowedResumeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".txt":  "text/plain",
}

type storedResume struct {
	resume  backend.Resume
	created time.Time
}

// ResumeStore keeps uploaded resumes in memory until a session claims them
type ResumeStore struct {
	mu      sync.Mutex
	resumes map[string]storedResume
	now     func() time.Time
}

// NewResumeStore creates an empty store
func NewResumeStore() *ResumeStore {
	return &ResumeStore{
		resumes: make(map[string]storedResume),
		now:     time.Now,
	}
}

// Put stores a resume and returns its ID. Entries older than 30 minutes are evicted.
func (s *ResumeStore) Put(resume backend.Resume) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, r := range s.resumes {
		if now.Sub(r.created) > resumeTTL {
			delete(s.resumes, id)
		}
	}

	id := uuid.NewString()
	s.resumes[id] = storedResume{resume: resume, created: now}
	return id
}

// Take removes and returns the resume with the given ID
func (s *ResumeStore) Take(id string) (backend.Resume, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resumes[id]
	if !ok || s.now().Sub(r.created) > resumeTTL {
		delete(s.resumes, id)
		return backend.Resume{}, false
	}
	delete(s.resumes, id)
	return r.resume, true
}

// Len returns the number of stored resumes
func (s *ResumeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resumes)
}

// UploadResponse is returned by the resume upload endpoint
type UploadResponse struct {
	ResumeID string `json:"resume_id"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

// ResumeUploadHandler accepts a multipart "resume" file (pdf, doc, docx, txt)
func ResumeUploadHandler(store *ResumeStore, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxResumeSize+(1<<20))
		file, header, err := r.FormFile("resume")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeDetail(w, http.StatusRequestEntityTooLarge, "resume exceeds 10 MB")
				return
			}
			writeDetail(w, http.StatusBadRequest, "missing resume file")
			return
		}
		defer file.Close()

		name := filepath.Base(header.Filename)
		ext := strings.ToLower(filepath.Ext(name))
		contentType, ok := allowedResumeTypes[ext]
		if !ok {
			writeDetail(w, http.StatusUnsupportedMediaType, "resume must be a PDF, DOC, DOCX or TXT file")
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, MaxResumeSize+1))
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "failed to read resume")
			return
		}
		if len(data) > MaxResumeSize {
			writeDetail(w, http.StatusRequestEntityTooLarge, "resume exceeds 10 MB")
			return
		}
		if len(data) == 0 {
			writeDetail(w, http.StatusBadRequest, "resume is empty")
			return
		}

		id := store.Put(backend.Resume{Filename: name, ContentType: contentType, Data: data})
		logger.Info().Str("resume_id", id).Str("filename", name).Int("bytes", len(data)).Msg("resume uploaded")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(UploadResponse{ResumeID: id, Filename: name, Size: len(data)})
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
