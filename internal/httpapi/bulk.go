package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/ingest"
	"power-dialer/pkg/logger"
)

const (
	uploadField           = "file"
	defaultMaxUploadBytes = 10 << 20
)

type startRequest struct {
	From string `json:"from"`
}

// UploadNumbers replaces the campaign with the numbers in the multipart "file".
func (h Handlers) UploadNumbers(c *gin.Context) {
	if h.Campaign == nil {
		notConfigured(c, "bulk calling")
		return
	}
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "FileTooLarge", "message": fmt.Sprintf("upload exceeds %d bytes", limit)})
			return
		}
		badRequest(c, "FileRequired", "No Excel file uploaded")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, err)
		return
	}

	numbers, err := ingest.Extract(data)
	if err != nil {
		logger.FromGin(c).Info("bulk upload rejected", "file", fh.Filename, "err", err)
		fail(c, err)
		return
	}
	snap := h.Campaign.Upload(numbers)
	h.Audit.LogCampaignControl(c.Request.Context(), actor(c), "upload", fmt.Sprintf(`{"file":%q,"total":%d}`, fh.Filename, snap.Total))
	c.JSON(http.StatusOK, gin.H{"message": "Numbers uploaded", "total": snap.Total})
}

func (h Handlers) StartBulk(c *gin.Context) {
	if h.Campaign == nil {
		notConfigured(c, "bulk calling")
		return
	}
	var req startRequest
	// An empty body means "use the default caller id".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "InvalidRequest", "invalid json")
		return
	}
	if err := h.Campaign.Start(req.From); err != nil {
		fail(c, err)
		return
	}
	snap := h.Campaign.Status()
	h.Audit.LogCampaignControl(c.Request.Context(), actor(c), "start", fmt.Sprintf(`{"from":%q}`, snap.CallerID))
	c.JSON(http.StatusOK, gin.H{"message": "Bulk calling initialized", "from": snap.CallerID})
}

func (h Handlers) PauseBulk(c *gin.Context) {
	if h.Campaign == nil {
		notConfigured(c, "bulk calling")
		return
	}
	h.Campaign.Pause()
	h.Audit.LogCampaignControl(c.Request.Context(), actor(c), "pause", "")
	c.JSON(http.StatusOK, gin.H{"message": "Bulk calling paused"})
}

func (h Handlers) ResumeBulk(c *gin.Context) {
	if h.Campaign == nil {
		notConfigured(c, "bulk calling")
		return
	}
	if err := h.Campaign.Resume(); err != nil {
		fail(c, err)
		return
	}
	h.Audit.LogCampaignControl(c.Request.Context(), actor(c), "resume", "")
	c.JSON(http.StatusOK, gin.H{"message": "Bulk calling resumed"})
}

func (h Handlers) StopBulk(c *gin.Context) {
	if h.Campaign == nil {
		notConfigured(c, "bulk calling")
		return
	}
	h.Campaign.Stop()
	h.Audit.LogCampaignControl(c.Request.Context(), actor(c), "stop", "")
	c.JSON(http.StatusOK, gin.H{"message": "Bulk calling stopped"})
}

func (h Handlers) BulkStatus(c *gin.Context) {
	if h.Campaign == nil {
		notConfigured(c, "bulk calling")
		return
	}
	c.JSON(http.StatusOK, h.Campaign.Status())
}
