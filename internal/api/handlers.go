package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"medstat/app"
	"medstat/domain/run"
	"medstat/internal/batch"
	"medstat/internal/errors"
	"medstat/ports"

	"github.com/gin-gonic/gin"
)

// BatchRequest is the body of POST /api/batch
type BatchRequest struct {
	Items []batch.Item `json:"items" binding:"required,min=1,dive"`
}

// REDCapRequest is the body of POST /api/data/redcap
type REDCapRequest struct {
	URL        string `json:"url" binding:"required,url"`
	Token      string `json:"token" binding:"required"`
	RawOrLabel string `json:"raw_or_label" binding:"omitempty,oneof=raw label"`
}

func (s *Server) handleAnalysis(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, errors.Validationf("failed to read request body: %v", err))
			return
		}
		result, err := s.analyses.Run(c.Request.Context(), app.SourceAPI, name, body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"analyses": s.analyses.Registry().Definitions()})
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Validationf("invalid batch request: %v", err))
		return
	}
	report, err := s.analyses.RunBatch(c.Request.Context(), req.Items)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleRecentRuns(c *gin.Context) {
	filter := ports.RunFilter{
		Analysis: c.Query("analysis"),
		Status:   run.Status(c.Query("status")),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(c, errors.ValidationError("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	runs, err := s.analyses.RecentRuns(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "ledger_enabled": s.opts.LedgerEnabled})
}

func (s *Server) handleUpload(c *gin.Context) {
	if s.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "upload exceeds the size limit",
				"code":  errors.CodeInvalidInput,
			})
			return
		}
		writeError(c, errors.Validationf("multipart field \"file\" is required: %v", err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, errors.Wrap(err, "failed to open upload"))
		return
	}
	defer f.Close()

	summary, err := s.data.Upload(c.Request.Context(), fh.Filename, f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleREDCap(c *gin.Context) {
	var req REDCapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.Validationf("invalid REDCap request: %v", err))
		return
	}
	summary, err := s.data.FetchREDCap(c.Request.Context(), ports.ExportRequest{
		URL:        req.URL,
		Token:      req.Token,
		RawOrLabel: req.RawOrLabel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"ledger":   s.opts.LedgerEnabled,
		"analyses": len(s.analyses.Registry().Definitions()),
	})
}
