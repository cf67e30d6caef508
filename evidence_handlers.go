package main

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/models"
	"github.com/PAMIDIVENKATAMANASA/trustchain-evidence-system/pkg/custody"
)

// evidenceSummary is the wire shape for one record.
func (a *app) evidenceSummary(e *models.Evidence) gin.H {
	return gin.H{
		"evidenceId":       e.EvidenceID,
		"fileName":         e.FileName,
		"fileType":         e.FileType,
		"fileSize":         e.FileSize,
		"contentId":        e.ContentID,
		"gatewayURL":       a.store.GatewayURL(e.ContentID),
		"publicURL":        a.store.PublicURL(e.ContentID),
		"ledgerReference":  e.LedgerReference,
		"fileHash":         e.FileDigest,
		"collectorName":    e.CollectorName,
		"collectorAddress": e.CollectorAddress,
		"capturedAt":       e.CapturedAt,
		"gpsLatitude":      e.GPSLatitude,
		"gpsLongitude":     e.GPSLongitude,
		"description":      e.Description,
		"status":           e.Status,
	}
}

// uploadEvidenceHandler runs the seal workflow for a multipart upload.
func (a *app) uploadEvidenceHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if file.Size > a.cfg.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	lat, lon, err := parseCoordinates(c.PostForm("gpsLatitude"), c.PostForm("gpsLongitude"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ct := file.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}

	record, err := a.custody.Seal(requestContext(c), custody.SealRequest{
		Data:        data,
		FileName:    file.Filename,
		FileType:    ct,
		Description: c.PostForm("description"),
		Latitude:    lat,
		Longitude:   lon,
		CapturedAt:  time.Now(),
		Collector:   user,
	})
	if err != nil {
		observeSeal("error")
		a.logger.Error("evidence upload failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("file", file.Filename),
			zap.Error(err))
		writeError(c, err)
		return
	}
	observeSeal("sealed")

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Evidence uploaded and sealed successfully",
		"evidence": a.evidenceSummary(record),
	})
}

// parseCoordinates enforces the both-or-neither invariant on the GPS pair.
func parseCoordinates(latStr, lonStr string) (*float64, *float64, error) {
	if latStr == "" && lonStr == "" {
		return nil, nil, nil
	}
	if latStr == "" || lonStr == "" {
		return nil, nil, errInvalidCoords
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, nil, errInvalidCoords
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, nil, errInvalidCoords
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, nil, errInvalidCoords
	}
	return &lat, &lon, nil
}

var errInvalidCoords = errors.New("gpsLatitude and gpsLongitude must both be valid numbers, or both absent")

// visibleEvidenceQuery applies the role visibility rule.
func visibleEvidenceQuery(user *models.User, role string) *gorm.DB {
	q := db.Model(&models.Evidence{})
	if !canSeeAllEvidence(role) {
		q = q.Where("collector_id = ?", user.ID)
	}
	return q
}

func (a *app) listEvidenceHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	var items []models.Evidence
	q := visibleEvidenceQuery(user, c.GetString("role"))
	if err := q.Order("created_at desc").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	out := make([]gin.H, 0, len(items))
	for i := range items {
		out = append(out, a.evidenceSummary(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "evidence": out})
}

// loadVisibleEvidence resolves :id under the caller's visibility.
func (a *app) loadVisibleEvidence(c *gin.Context) (*models.Evidence, bool) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evidence id"})
		return nil, false
	}
	var e models.Evidence
	q := visibleEvidenceQuery(user, c.GetString("role"))
	if err := q.Where("evidence_id = ?", id).First(&e).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "evidence not found"})
		return nil, false
	}
	return &e, true
}

func (a *app) getEvidenceHandler(c *gin.Context) {
	e, ok := a.loadVisibleEvidence(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"evidence": a.evidenceSummary(e)})
}

// downloadEvidenceHandler streams the original bytes back from the content
// store with the stored content type.
func (a *app) downloadEvidenceHandler(c *gin.Context) {
	e, ok := a.loadVisibleEvidence(c)
	if !ok {
		return
	}
	data, err := a.store.Download(requestContext(c), e.ContentID)
	if err != nil {
		a.logger.Error("evidence download failed",
			zap.Int64("evidence_id", e.EvidenceID),
			zap.String("cid", e.ContentID),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "error downloading evidence file"})
		return
	}
	fileType := e.FileType
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `inline; filename="`+url.PathEscape(e.FileName)+`"`)
	c.Data(http.StatusOK, fileType, data)
}
