package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"teachprep-server-go/ai"
	"teachprep-server-go/analyzer"
	"teachprep-server-go/db"
	"teachprep-server-go/logger"
	"teachprep-server-go/metrics"
	"teachprep-server-go/models"
)

// ClassDataHandler serves the class fitness-data endpoints: Excel upload and
// analysis, profile CRUD, and profile export.
type ClassDataHandler struct {
	analyzer *analyzer.Service
	store    *db.ProfileStore
	ai       ai.Client
	dataDir  string
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewClassDataHandler(a *analyzer.Service, store *db.ProfileStore, aiClient ai.Client, dataDir string, m *metrics.Metrics, log *logger.Logger) *ClassDataHandler {
	return &ClassDataHandler{
		analyzer: a,
		store:    store,
		ai:       aiClient,
		dataDir:  dataDir,
		metrics:  m,
		log:      log.With("handler", "ClassData"),
	}
}

// Upload handles POST /api/class_data/upload: rule-based analysis of an
// uploaded Excel sheet, persisted under the given class name.
func (h *ClassDataHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请上传文件"})
		return
	}
	className := strings.TrimSpace(c.PostForm("class_name"))
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请提供班级名称"})
		return
	}
	if file.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请选择文件"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.log.Error("could not open uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "文件读取失败"})
		return
	}
	defer src.Close()

	profile, err := h.analyzer.AnalyzeUpload(src, className)
	if err != nil {
		h.log.Error("upload analysis failed", "class", className, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("分析失败: %v", err)})
		return
	}
	if err := h.store.Update(className, profile); err != nil {
		h.log.Error("could not persist class profile", "class", className, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "保存班级配置失败"})
		return
	}
	h.metrics.UploadAnalyzed()
	h.log.Info("class profile updated from upload", "class", className)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"class_name": className, "profile": profile},
	})
}

// UploadStream handles POST /api/class_data/upload_stream: LLM-assisted
// analysis with SSE progress events, falling back to rule-based results on
// model failure.
func (h *ClassDataHandler) UploadStream(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请上传文件"})
		return
	}
	className := strings.TrimSpace(c.PostForm("class_name"))
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请提供班级名称"})
		return
	}

	writer := c.Writer
	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)

	emit := func(event map[string]any) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		fmt.Fprintf(writer, "data: %s\n\n", payload)
		writer.Flush()
	}
	done := func() {
		fmt.Fprint(writer, "data: [DONE]\n\n")
		writer.Flush()
	}

	src, err := file.Open()
	if err != nil {
		emit(map[string]any{"type": "error", "message": "文件读取失败"})
		done()
		return
	}
	defer src.Close()

	records, err := analyzer.ReadRecords(src)
	if err != nil {
		emit(map[string]any{"type": "error", "message": fmt.Sprintf("文件解析失败: %v", err)})
		done()
		return
	}

	profile, err := h.analyzer.AnalyzeWithLLM(c.Request.Context(), h.ai, records, className, func(line string) {
		emit(map[string]any{"type": "progress", "content": line})
	})
	if err != nil {
		emit(map[string]any{"type": "error", "message": fmt.Sprintf("分析失败: %v", err)})
		done()
		return
	}
	if err := h.store.Update(className, profile); err != nil {
		h.log.Error("could not persist class profile", "class", className, "error", err)
		emit(map[string]any{"type": "error", "message": "保存班级配置失败"})
		done()
		return
	}
	h.metrics.UploadAnalyzed()
	emit(map[string]any{
		"type":    "success",
		"profile": profile,
		"message": "✅ 分析完成并已保存！",
	})
	done()
}

// AnalyzeFile handles POST /api/class_data/analyze/:filename: analyzes an
// Excel file already present in the class-data directory.
func (h *ClassDataHandler) AnalyzeFile(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	path := filepath.Join(h.dataDir, filename)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "文件不存在"})
		return
	}

	className, profile, err := h.analyzer.AnalyzeFile(path)
	if err != nil {
		h.log.Error("file analysis failed", "file", filename, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("分析失败: %v", err)})
		return
	}
	if err := h.store.Update(className, profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "保存班级配置失败"})
		return
	}
	h.metrics.UploadAnalyzed()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"class_name": className, "profile": profile},
	})
}

// BatchAnalyze handles POST /api/class_data/batch_analyze: analyzes every
// Excel file in the class-data directory with bounded concurrency.
func (h *ClassDataHandler) BatchAnalyze(c *gin.Context) {
	var req struct {
		MaxCount int `json:"max_count"`
	}
	// An empty body means "analyze everything".
	_ = c.ShouldBindJSON(&req)

	results, err := h.analyzer.AnalyzeDir(c.Request.Context(), h.dataDir, req.MaxCount)
	if err != nil {
		h.log.Error("batch analysis failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": fmt.Sprintf("批量分析失败: %v", err)})
		return
	}
	for _, r := range results {
		if !r.Success || r.Profile == nil {
			continue
		}
		if err := h.store.Update(r.ClassName, *r.Profile); err != nil {
			h.log.Error("could not persist class profile", "class", r.ClassName, "error", err)
			continue
		}
		h.metrics.UploadAnalyzed()
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": len(results), "results": results})
}

// Profiles handles GET /api/class_data/profiles.
func (h *ClassDataHandler) Profiles(c *gin.Context) {
	profiles, err := h.store.All()
	if err != nil {
		h.log.Error("could not load class profiles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "读取班级配置失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": profiles, "count": len(profiles)})
}

// DeleteProfile handles DELETE /api/class_data/profile/:class_name.
func (h *ClassDataHandler) DeleteProfile(c *gin.Context) {
	className := c.Param("class_name")
	deleted, err := h.store.Delete(className)
	if err != nil {
		h.log.Error("profile deletion failed", "class", className, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "删除班级配置失败"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "班级配置不存在"})
		return
	}
	h.metrics.ProfileDeleted()
	h.log.Info("class profile deleted", "class", className)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("%s 配置已删除", className)})
}

// Download handles GET /api/class_data/download/:class_name: exports the
// stored profile as an .xlsx workbook.
func (h *ClassDataHandler) Download(c *gin.Context) {
	className := c.Param("class_name")
	profile, found, err := h.store.Get(className)
	if err != nil {
		h.log.Error("could not load class profile", "class", className, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "读取班级配置失败"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "班级配置不存在"})
		return
	}

	workbook, err := buildProfileWorkbook(className, profile)
	if err != nil {
		h.log.Error("workbook export failed", "class", className, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "导出失败"})
		return
	}
	defer workbook.Close()

	filename := fmt.Sprintf("%s_配置.xlsx", className)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	if err := workbook.Write(c.Writer); err != nil {
		h.log.Error("workbook write failed", "class", className, "error", err)
	}
}

// buildProfileWorkbook renders a profile as an Excel workbook. The grouping
// and stats sheets are only added when the profile carries that data.
func buildProfileWorkbook(className string, profile models.ClassProfile) (*excelize.File, error) {
	f := excelize.NewFile()

	const infoSheet = "班级信息"
	if err := f.SetSheetName("Sheet1", infoSheet); err != nil {
		return nil, err
	}
	infoRows := [][]any{
		{"班级名称", className},
		{"年级", profile.GradesQuery},
		{"人数", profile.CountQuery},
		{"核心薄弱维度", profile.TrainedWeaknesses},
		{"描述", profile.Description},
	}
	for _, key := range sortedKeys(profile.WeaknessDetails) {
		infoRows = append(infoRows, []any{key + "分析", profile.WeaknessDetails[key]})
	}
	for i, row := range infoRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(infoSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if len(profile.StudentGroups) > 0 {
		const groupSheet = "学生分组"
		if _, err := f.NewSheet(groupSheet); err != nil {
			return nil, err
		}
		rows := [][]any{{"薄弱维度", "人数", "薄弱项目", "学生编号", "姓名", "性别"}}
		for _, dimension := range sortedKeys(profile.StudentGroups) {
			group := profile.StudentGroups[dimension]
			items := strings.Join(group.WeaknessItems, "、")
			if len(group.StudentDetails) == 0 {
				rows = append(rows, []any{dimension, group.Count, items, "", "", ""})
				continue
			}
			for _, student := range group.StudentDetails {
				rows = append(rows, []any{dimension, group.Count, items, student.StudentID, student.Name, student.Gender})
			}
		}
		if err := writeRows(f, groupSheet, rows); err != nil {
			return nil, err
		}
	}

	if len(profile.TestStats) > 0 {
		const statsSheet = "体测统计"
		if _, err := f.NewSheet(statsSheet); err != nil {
			return nil, err
		}
		rows := [][]any{{"测试项目", "维度", "优秀", "良好", "及格", "不及格"}}
		for _, item := range sortedKeys(profile.TestStats) {
			stats := profile.TestStats[item]
			rows = append(rows, []any{item, stats.Dimension, stats.Excellent, stats.Good, stats.Pass, stats.Fail})
		}
		if err := writeRows(f, statsSheet, rows); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
