// handlers_session.go - Batch session handlers
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/filesmile/backend/internal/models"
	"github.com/filesmile/backend/internal/pdf"
	"github.com/filesmile/backend/internal/session"
)

// eventInterval is how often the event stream polls the batch.
var eventInterval = 200 * time.Millisecond

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions SessionManager
	log      zerolog.Logger
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessions SessionManager, log zerolog.Logger) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions, log: log}
}

// batchResponse is the full state of one batch.
type batchResponse struct {
	Session             models.BatchSession       `json:"session"`
	Files               []models.BarcodeFile      `json:"files"`
	Selected            int                       `json:"selected"`
	UploadProgress      float64                   `json:"uploadProgress"`
	CurrentProcessingID string                    `json:"currentProcessingId,omitempty"`
	Counts              map[models.FileStatus]int `json:"counts"`
	Progress            map[string]pdf.Progress   `json:"progress,omitempty"`
}

func newBatchResponse(s *session.Session) batchResponse {
	st := s.Store.Snapshot()
	resp := batchResponse{
		Session:             s.Summary(),
		Files:               st.Files,
		Selected:            st.Selected,
		UploadProgress:      st.UploadProgress,
		CurrentProcessingID: st.CurrentProcessingID,
		Counts:              st.Counts(),
	}
	for _, f := range st.Files {
		if f.Status != models.FileStatusDetecting {
			continue
		}
		if pr, ok := s.Processor.Progress(f.ID); ok {
			if resp.Progress == nil {
				resp.Progress = make(map[string]pdf.Progress)
			}
			resp.Progress[f.ID] = pr
		}
	}
	return resp
}

// lookupSession resolves the :sessionId parameter and marks the session used.
func lookupSession(sessions SessionManager, c echo.Context) (*session.Session, error) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}
	s, err := sessions.Get(id)
	if err != nil {
		return nil, NewNotFoundError("session", id)
	}
	return s, nil
}

type createSessionRequest struct {
	User string `json:"user"`
}

// HandleCreateSession starts a session; its prefix cache loads in the background
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	var req createSessionRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}
	if req.User == "" {
		req.User = c.Request().Header.Get("X-User")
	}

	s, err := h.sessions.Create(req.User)
	if err != nil {
		return fromDomainError("failed to create session", err)
	}
	return c.JSON(http.StatusCreated, s.Summary())
}

// HandleListSessions returns summaries of all live sessions
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetSession returns the batch snapshot as JSON
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newBatchResponse(s))
}

// HandleGetSessionMsgpack returns the batch snapshot in MessagePack format
func (h *SessionHandlerImpl) HandleGetSessionMsgpack(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(newBatchResponse(s)); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", buf.Bytes())
}

// HandleSessionEvents streams batch snapshots via SSE whenever they change.
// Without follow=true the stream ends once the batch is idle.
func (h *SessionHandlerImpl) HandleSessionEvents(c echo.Context) error {
	s, err := lookupSession(h.sessions, c)
	if err != nil {
		return err
	}
	follow, _ := strconv.ParseBool(c.QueryParam("follow"))

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()

	var last []byte
	for {
		if s.Context().Err() != nil {
			fmt.Fprintf(c.Response(), "event: end\ndata: %s\n\n", `{"error":"session ended"}`)
			c.Response().Flush()
			return nil
		}

		resp := newBatchResponse(s)
		data, err := json.Marshal(resp)
		if err != nil {
			h.log.Warn().Err(err).Msg("encoding batch event")
		} else if !bytes.Equal(data, last) {
			last = data
			fmt.Fprintf(c.Response(), "data: %s\n\n", data)
			c.Response().Flush()
		}

		if !follow && !resp.Session.Processing {
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HandleDeleteSession ends a session and deletes its payloads
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}
	if err := h.sessions.Delete(id); err != nil {
		return fromDomainError("failed to delete session", err)
	}
	return c.NoContent(http.StatusNoContent)
}
