package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID is a backend record identifier. The backend has emitted both numeric and
// string ids, so both decode into the same form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Transcription status values.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

type Transcription struct {
	ID        ID         `json:"id"`
	Title     string     `json:"title"`
	Language  string     `json:"language"`
	Content   string     `json:"content"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Translation struct {
	ID              ID         `json:"id"`
	TranscriptionID ID         `json:"transcription_id,omitempty"`
	SourceLanguage  string     `json:"source_language"`
	TargetLanguage  string     `json:"target_language"`
	Content         string     `json:"content"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
}

type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateTranscriptionRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

type UpdateTranscriptionRequest struct {
	Content string `json:"content"`
	Status  string `json:"status"`
}

type CreateTranslationRequest struct {
	TranscriptionID ID     `json:"transcription_id"`
	SourceLanguage  string `json:"source_language"`
	TargetLanguage  string `json:"target_language"`
	Content         string `json:"content"`
}

// AITranslateRequest asks the backend to translate either raw Text or an
// existing transcription.
type AITranslateRequest struct {
	Text            string `json:"text,omitempty"`
	TranscriptionID ID     `json:"transcription_id,omitempty"`
	SourceLanguage  string `json:"source_language,omitempty"`
	TargetLanguage  string `json:"target_language"`
	HighQuality     bool   `json:"high_quality"`
}

// Glossary maps source-language medical terms to their target-language form.
type Glossary map[string]any
