package apitest

import (
	"encoding/csv"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harveywai/certwatch/pkg/auth"
	"github.com/harveywai/certwatch/pkg/middleware"
	"github.com/pkg/errors"
	"github.com/weppos/publicsuffix-go/publicsuffix"
	"gorm.io/gorm"
)

const (
	defaultPerPage = 100
	maxPerPage     = 1000
	historyLimit   = 5
)

var sortColumns = map[string]string{
	"domain":            "domain",
	"ssl_status":        "ssl_status",
	"ssl_expiry_date":   "ssl_expiry_date",
	"days_until_expiry": "days_until_expiry",
	"scan_time":         "scan_time",
	"created_at":        "created_at",
}

func (b *Backend) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), b.count())

	api := r.Group("/api")
	api.POST("/auth/login", b.handleLogin)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(b.validate))
	{
		authed.POST("/auth/logout", b.handleLogout)
		authed.GET("/auth/me", b.handleMe)
		authed.POST("/auth/change-password", b.handleChangePassword)

		authed.GET("/dashboard/summary", b.handleSummary)

		authed.GET("/domains", b.handleListDomains)
		authed.POST("/domains", b.handleCreateDomain)
		authed.POST("/domains/bulk", b.handleBulkCreate)

		admin := authed.Group("")
		admin.Use(middleware.RoleMiddleware("admin"))
		admin.DELETE("/domains/:id", b.handleDeleteDomain)
		admin.POST("/domains/bulk-delete", b.handleBulkDelete)
		admin.POST("/domains/bulk-delete-by-name", b.handleDeleteByName)

		authed.POST("/scan/trigger", b.handleTriggerScan)
		authed.POST("/scan/domains", b.handleScanDomains)
		authed.GET("/scan/status/:id", b.handleScanStatus)

		authed.GET("/export/csv", b.handleExport)
	}
	return r
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

func (b *Backend) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var u UserRecord
	err := b.db.Where(&UserRecord{Username: req.Username}).First(&u).Error
	if err != nil || !auth.CheckPassword(u.Password, req.Password) {
		detail(c, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := b.signer.GenerateToken(u.ID, u.Username, u.RoleName)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": u.toJSON()})
}

func (b *Backend) handleLogout(c *gin.Context) {
	token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer"))
	b.Revoke(token)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (b *Backend) currentUser(c *gin.Context) (*UserRecord, bool) {
	var u UserRecord
	if err := b.db.First(&u, middleware.UserID(c)).Error; err != nil {
		detail(c, http.StatusUnauthorized, "User not found")
		return nil, false
	}
	return &u, true
}

func (b *Backend) handleMe(c *gin.Context) {
	u, ok := b.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, u.toJSON())
}

func (b *Backend) handleChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		OldPassword     string `json:"old_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	u, ok := b.currentUser(c)
	if !ok {
		return
	}
	current := req.CurrentPassword
	if current == "" {
		current = req.OldPassword
	}
	if !auth.CheckPassword(u.Password, current) {
		detail(c, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if len(req.NewPassword) < 6 {
		detail(c, http.StatusBadRequest, "New password must be at least 6 characters")
		return
	}
	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update password")
		return
	}
	if err := b.db.Model(u).Update("password", hashed).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (b *Backend) handleSummary(c *gin.Context) {
	var total, valid, soon, failed int64
	b.db.Model(&DomainRecord{}).Count(&total)
	b.db.Model(&DomainRecord{}).Where("ssl_status = ?", "VALID").Count(&valid)
	b.db.Model(&DomainRecord{}).Where("days_until_expiry IS NOT NULL AND days_until_expiry < ?", ExpiringSoonDays).Count(&soon)
	b.db.Model(&DomainRecord{}).Where("ssl_status = ?", "INVALID").Count(&failed)

	var last ScanRecord
	var lastScan *string
	if err := b.db.Order("scan_time DESC").First(&last).Error; err == nil {
		lastScan = formatTime(&last.ScanTime)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_domains":      total,
		"ssl_valid_count":    valid,
		"expired_soon_count": soon,
		"failed_count":       failed,
		"last_scan_time":     lastScan,
	})
}

func (b *Backend) filtered(c *gin.Context) *gorm.DB {
	q := b.db.Model(&DomainRecord{})
	if status := c.Query("ssl_status"); status != "" {
		q = q.Where("ssl_status = ?", strings.ToUpper(status))
	}
	if soon, _ := strconv.ParseBool(c.Query("expired_soon")); soon {
		q = q.Where("days_until_expiry IS NOT NULL AND days_until_expiry < ?", ExpiringSoonDays)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		q = q.Where("LOWER(domain) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	return q
}

func (b *Backend) handleListDomains(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		detail(c, http.StatusUnprocessableEntity, "page must be a positive integer")
		return
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 || perPage > maxPerPage {
		detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("per_page must be between 1 and %d", maxPerPage))
		return
	}
	column, ok := sortColumns[c.DefaultQuery("sort_by", "domain")]
	if !ok {
		column = "domain"
	}
	order := "ASC"
	if strings.EqualFold(c.Query("sort_order"), "desc") {
		order = "DESC"
	}

	var total int64
	if err := b.filtered(c).Count(&total).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to count domains")
		return
	}

	var rows []DomainRecord
	err = b.filtered(c).
		Order(fmt.Sprintf("%s %s, id ASC", column, order)).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to load domains")
		return
	}

	out := make([]domainJSON, 0, len(rows))
	for _, d := range rows {
		out = append(out, b.toDomainJSON(d))
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	if totalPages < 1 {
		totalPages = 1
	}
	c.JSON(http.StatusOK, gin.H{
		"domains":     out,
		"page":        page,
		"per_page":    perPage,
		"total":       total,
		"total_pages": totalPages,
	})
}

func (b *Backend) toDomainJSON(d DomainRecord) domainJSON {
	var scans []ScanRecord
	b.db.Where(&ScanRecord{DomainID: d.ID}).
		Order("scan_time DESC, id DESC").
		Limit(historyLimit).
		Find(&scans)

	history := make([]historyJSON, 0, len(scans))
	for _, s := range scans {
		history = append(history, historyJSON{
			SSLStatus:       s.SSLStatus,
			ScanTime:        s.ScanTime.UTC().Format(timestampLayout),
			DaysUntilExpiry: s.DaysUntilExpiry,
		})
	}
	return domainJSON{
		ID:              d.ID,
		Domain:          d.Domain,
		Notes:           d.Notes,
		SSLStatus:       d.SSLStatus,
		SSLExpiryDate:   d.SSLExpiryDate,
		DaysUntilExpiry: d.DaysUntilExpiry,
		ScanTime:        formatTime(d.ScanTime),
		CreatedAt:       d.CreatedAt.UTC().Format(timestampLayout),
		StatusHistory:   history,
	}
}

// normalizeDomain lowercases name and checks it has a registrable domain
// under the public suffix list.
func normalizeDomain(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(strings.TrimPrefix(name, "https://"), "http://")
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		return "", errors.New("Domain is required")
	}
	if strings.ContainsAny(name, " \t/:@") {
		return "", errors.New("Invalid domain format")
	}
	if _, err := publicsuffix.Domain(name); err != nil {
		return "", errors.New("Invalid domain format")
	}
	return name, nil
}

func (b *Backend) create(name string, notes *string) (*DomainRecord, error) {
	name, err := normalizeDomain(name)
	if err != nil {
		return nil, err
	}
	var existing int64
	b.db.Model(&DomainRecord{}).Where(&DomainRecord{Domain: name}).Count(&existing)
	if existing > 0 {
		return nil, errors.New("Domain already exists")
	}
	rec := DomainRecord{Domain: name, Notes: notes}
	if err := b.db.Create(&rec).Error; err != nil {
		return nil, errors.New("Failed to add domain")
	}
	return &rec, nil
}

func (b *Backend) handleCreateDomain(c *gin.Context) {
	var req struct {
		Domain string  `json:"domain"`
		Notes  *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	rec, err := b.create(req.Domain, req.Notes)
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, b.toDomainJSON(*rec))
}

func (b *Backend) handleBulkCreate(c *gin.Context) {
	var req struct {
		Domains []string `json:"domains"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Domains) == 0 {
		detail(c, http.StatusBadRequest, "No domains provided")
		return
	}

	added := make([]domainJSON, 0, len(req.Domains))
	failed := make([]gin.H, 0)
	for _, name := range req.Domains {
		rec, err := b.create(name, nil)
		if err != nil {
			failed = append(failed, gin.H{"domain": name, "reason": err.Error()})
			continue
		}
		added = append(added, b.toDomainJSON(*rec))
	}
	c.JSON(http.StatusOK, gin.H{
		"total_added":  len(added),
		"total_failed": len(failed),
		"added":        added,
		"failed":       failed,
	})
}

func (b *Backend) deleteIDs(ids []int) (int64, error) {
	var deleted int64
	err := b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id IN ?", ids).Delete(&ScanRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&DomainRecord{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

func (b *Backend) handleDeleteDomain(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "Invalid domain id")
		return
	}
	n, err := b.deleteIDs([]int{id})
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to delete domain")
		return
	}
	if n == 0 {
		detail(c, http.StatusNotFound, "Domain not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain deleted successfully"})
}

func (b *Backend) handleBulkDelete(c *gin.Context) {
	var req struct {
		DomainIDs []int `json:"domain_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.DomainIDs) == 0 {
		detail(c, http.StatusBadRequest, "No domain IDs provided")
		return
	}
	n, err := b.deleteIDs(req.DomainIDs)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to delete domains")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       fmt.Sprintf("Successfully deleted %d domain(s)", n),
		"deleted_count": n,
	})
}

func (b *Backend) handleDeleteByName(c *gin.Context) {
	var req struct {
		Domains []string `json:"domains"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Domains) == 0 {
		detail(c, http.StatusBadRequest, "No domains provided")
		return
	}

	var ids []int
	notFound := make([]string, 0)
	for _, name := range req.Domains {
		var rec DomainRecord
		err := b.db.Where(&DomainRecord{Domain: strings.ToLower(strings.TrimSpace(name))}).First(&rec).Error
		if err != nil {
			notFound = append(notFound, name)
			continue
		}
		ids = append(ids, rec.ID)
	}

	var n int64
	if len(ids) > 0 {
		var err error
		if n, err = b.deleteIDs(ids); err != nil {
			detail(c, http.StatusInternalServerError, "Failed to delete domains")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           fmt.Sprintf("Successfully deleted %d domain(s)", n),
		"deleted_count":     n,
		"not_found_domains": notFound,
	})
}

func (b *Backend) handleTriggerScan(c *gin.Context) {
	b.db.Model(&DomainRecord{}).Where("1 = 1").Update("scan_pending", true)
	b.probe(nil)
	c.JSON(http.StatusOK, gin.H{"message": "Scan triggered. Results will be available shortly."})
}

func (b *Backend) handleScanDomains(c *gin.Context) {
	var req struct {
		DomainIDs []int `json:"domain_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.DomainIDs) == 0 {
		detail(c, http.StatusBadRequest, "No domain IDs provided")
		return
	}

	var rows []DomainRecord
	b.db.Where("id IN ?", req.DomainIDs).Order("domain ASC").Find(&rows)
	if len(rows) == 0 {
		detail(c, http.StatusNotFound, "No valid domains found")
		return
	}
	names := make([]string, 0, len(rows))
	for _, d := range rows {
		names = append(names, d.Domain)
	}
	b.db.Model(&DomainRecord{}).Where("id IN ?", req.DomainIDs).Update("scan_pending", true)
	b.probe(req.DomainIDs)

	c.JSON(http.StatusOK, gin.H{
		"message":      fmt.Sprintf("SSL scan triggered for %d domain(s)", len(rows)),
		"domain_count": len(rows),
		"domains":      names,
	})
}

func (b *Backend) handleScanStatus(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "Invalid domain id")
		return
	}
	var d DomainRecord
	if err := b.db.First(&d, id).Error; err != nil {
		detail(c, http.StatusNotFound, "Domain not found")
		return
	}
	var scans int64
	b.db.Model(&ScanRecord{}).Where(&ScanRecord{DomainID: id}).Count(&scans)

	status := "completed"
	switch {
	case d.ScanPending:
		status = "pending"
	case scans == 0:
		status = "never_scanned"
	}
	c.JSON(http.StatusOK, gin.H{
		"domain_id":   d.ID,
		"domain_name": d.Domain,
		"status":      status,
		"last_scan":   formatTime(d.ScanTime),
		"scan_count":  scans,
	})
}

func (b *Backend) handleExport(c *gin.Context) {
	q := b.db.Model(&DomainRecord{})
	if status := c.Query("ssl_status"); status != "" {
		q = q.Where("ssl_status = ?", strings.ToUpper(status))
	}
	var rows []DomainRecord
	if err := q.Order("domain ASC").Find(&rows).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to export")
		return
	}

	filename := fmt.Sprintf("ssl_report_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"Domain", "SSL Status", "Expiry Date", "Days Until Expiry", "HTTPS Status", "Redirect URL", "Last Scan"})
	for _, d := range rows {
		days := ""
		if d.DaysUntilExpiry != nil {
			days = strconv.Itoa(*d.DaysUntilExpiry)
		}
		scan := ""
		if s := formatTime(d.ScanTime); s != nil {
			scan = *s
		}
		w.Write([]string{d.Domain, deref(d.SSLStatus), deref(d.SSLExpiryDate), days, "", "", scan})
	}
	w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
