package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sentinelreview/sentinel/internal/jobqueue"
	"github.com/sentinelreview/sentinel/internal/metrics"
	"github.com/sentinelreview/sentinel/pkg/models"
)

// maxBodyBytes bounds the webhook payload read. GitHub caps payloads at
// 25 MB; anything larger here is hostile.
const maxBodyBytes = 25 << 20

// reviewableActions are the pull request actions worth reviewing.
var reviewableActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

type webhookHandler struct {
	secret []byte
	queue  jobqueue.Queue
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest *struct {
		Draft bool `json:"draft"`
		Head  struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository *struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Installation *struct {
		ID int64 `json:"id"`
	} `json:"installation"`
}

func (h *webhookHandler) handle(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	if !h.verifySignature(c.Request().Header.Get("X-Hub-Signature-256"), body) {
		log.Warn().
			Str("delivery", c.Request().Header.Get("X-GitHub-Delivery")).
			Msg("webhook signature verification failed")
		metrics.WebhookRequests.WithLabelValues("unauthorized").Inc()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	if event := c.Request().Header.Get("X-GitHub-Event"); event != "pull_request" {
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		return ignored(c, "event "+event+" not handled")
	}

	var payload pullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Malformed JSON falls through to shape validation as an empty
		// payload, which rejects cleanly.
		payload = pullRequestPayload{}
	}

	if payload.PullRequest == nil || payload.Repository == nil ||
		payload.Repository.Owner.Login == "" || payload.Repository.Name == "" ||
		payload.Number < 1 || payload.Action == "" {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed pull_request payload"})
	}

	if !reviewableActions[payload.Action] {
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		return ignored(c, "action "+payload.Action+" not reviewable")
	}
	if payload.PullRequest.Draft {
		metrics.WebhookRequests.WithLabelValues("ignored").Inc()
		return ignored(c, "draft PR")
	}
	if payload.Installation == nil || payload.Installation.ID == 0 {
		metrics.WebhookRequests.WithLabelValues("invalid").Inc()
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing installation id"})
	}

	requestID := c.Request().Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	job := &models.ReviewJob{
		ID:             uuid.NewString(),
		Owner:          payload.Repository.Owner.Login,
		Repo:           payload.Repository.Name,
		PRNumber:       payload.Number,
		SHA:            payload.PullRequest.Head.SHA,
		InstallationID: payload.Installation.ID,
		Action:         payload.Action,
		CreatedAt:      time.Now().UTC(),
		RequestID:      requestID,
	}

	// Fire-and-forget: an enqueue failure is logged, the webhook is still
	// acknowledged so the host does not redeliver a payload we cannot use.
	if err := h.queue.Enqueue(c.Request().Context(), job); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
	}

	log.Info().
		Str("job_id", job.ID).
		Str("repo", job.Owner+"/"+job.Repo).
		Int("pr", job.PRNumber).
		Str("action", job.Action).
		Str("request_id", requestID).
		Msg("review job accepted")
	metrics.WebhookRequests.WithLabelValues("accepted").Inc()

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":  "queued",
		"jobId":   job.ID,
		"message": "review scheduled",
	})
}

// verifySignature checks the sha256= HMAC over the raw body. Comparison is
// constant-time for matching and mismatching lengths alike.
func (h *webhookHandler) verifySignature(header string, body []byte) bool {
	sigHex, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

func ignored(c echo.Context, reason string) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ignored",
		"reason": reason,
	})
}
