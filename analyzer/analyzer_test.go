package analyzer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"teachprep-server-go/logger"
)

// buildWorkbook renders header+rows as an in-memory .xlsx stream.
func buildWorkbook(t *testing.T, header []string, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow("Sheet1", "A1", &headerRow); err != nil {
		t.Fatalf("set header: %v", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row %d: %v", i, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

var fitnessHeader = []string{"序号", "学生编号", "姓名", "性别", "年级编号", "50米跑等级", "800米跑等级"}

func testService(t *testing.T) *Service {
	t.Helper()
	return NewService(DefaultRules(), logger.NewNop())
}

func TestReadRecords(t *testing.T) {
	buf := buildWorkbook(t, fitnessHeader, [][]any{
		{"1", "S001", "张三", "男", "16", "优秀", "不及格"},
		{"", "", "", "", "", "", ""},
		{"2", "S002", "李四", "女", "16", "良好", "及格"},
	})
	records, err := ReadRecords(buf)
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (empty row dropped), got %d", len(records))
	}
	if records[0]["姓名"] != "张三" || records[1]["50米跑等级"] != "良好" {
		t.Fatalf("records = %+v", records)
	}
}

func TestReadRecordsNoDataRows(t *testing.T) {
	buf := buildWorkbook(t, fitnessHeader, nil)
	if _, err := ReadRecords(buf); err == nil {
		t.Fatal("expected error for header-only sheet")
	}
}

func TestGradeQuery(t *testing.T) {
	svc := testService(t)
	if got := svc.GradeQuery([]Record{{"年级编号": "16"}}); got != "3" {
		t.Fatalf("GradeQuery(16) = %q, want 3", got)
	}
	if got := svc.GradeQuery([]Record{{"年级编号": "99"}}); got != "1" {
		t.Fatalf("GradeQuery(99) = %q, want default 1", got)
	}
	if got := svc.GradeQuery(nil); got != "1" {
		t.Fatalf("GradeQuery(nil) = %q, want default 1", got)
	}
}

func TestAnalyzeWeaknessRanking(t *testing.T) {
	svc := testService(t)
	// 速度 all excellent, 耐力 all fail: 耐力 must rank first.
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{
			"50米跑等级":  "优秀",
			"800米跑等级": "不及格",
		})
	}
	weaknesses, details, items := svc.AnalyzeWeakness(records, "三年级2班")
	if len(weaknesses) == 0 || weaknesses[0] != "耐力" {
		t.Fatalf("weaknesses = %v, want 耐力 first", weaknesses)
	}
	if items["耐力"] != "800米跑" {
		t.Fatalf("items = %v", items)
	}
	if !strings.Contains(details["耐力"], "三年级2班") || !strings.Contains(details["耐力"], "800米跑") {
		t.Fatalf("detail = %q", details["耐力"])
	}
}

func TestAnalyzeWeaknessKeepsWorstItemPerDimension(t *testing.T) {
	svc := testService(t)
	// Two 耐力 items: 1000米跑 fails everywhere, 800米跑 does fine.
	var records []Record
	for i := 0; i < 4; i++ {
		records = append(records, Record{
			"800米跑等级":  "优秀",
			"1000米跑等级": "不及格",
		})
	}
	_, _, items := svc.AnalyzeWeakness(records, "八年级1班")
	if items["耐力"] != "1000米跑" {
		t.Fatalf("expected worst 耐力 item kept, got %q", items["耐力"])
	}
}

func TestAnalyzeWeaknessTopN(t *testing.T) {
	svc := testService(t)
	records := []Record{{
		"50米跑等级":   "不及格",
		"800米跑等级":  "不及格",
		"坐位体前屈等级": "不及格",
		"肺活量等级":    "不及格",
	}}
	weaknesses, _, _ := svc.AnalyzeWeakness(records, "班")
	if len(weaknesses) != DefaultRules().TopWeaknesses {
		t.Fatalf("expected top-%d weaknesses, got %v", DefaultRules().TopWeaknesses, weaknesses)
	}
}

func TestStudentGroups(t *testing.T) {
	svc := testService(t)
	records := []Record{
		{"序号": "1", "学生编号": "S001", "姓名": "张三", "性别": "男", "800米跑等级": "不及格"},
		{"序号": "2", "学生编号": "S002", "姓名": "李四", "性别": "女", "800米跑等级": "及格"},
		{"序号": "3", "性别": "男", "800米跑等级": "不及格"},
	}
	groups := svc.StudentGroups(records, []string{"耐力"}, map[string]string{"耐力": "800米跑"})
	group, ok := groups["耐力"]
	if !ok {
		t.Fatalf("groups = %+v", groups)
	}
	if group.Count != 2 {
		t.Fatalf("count = %d, want 2", group.Count)
	}
	if group.StudentDetails[0].Name != "张三" || group.StudentDetails[0].StudentID != "S001" {
		t.Fatalf("details = %+v", group.StudentDetails)
	}
	if group.StudentDetails[1].Name != "学生3" {
		t.Fatalf("expected 序号 fallback name, got %q", group.StudentDetails[1].Name)
	}
	if len(group.WeaknessItems) != 1 || group.WeaknessItems[0] != "800米跑" {
		t.Fatalf("weakness items = %v", group.WeaknessItems)
	}
}

func TestBuildProfile(t *testing.T) {
	svc := testService(t)
	buf := buildWorkbook(t, fitnessHeader, [][]any{
		{"1", "S001", "张三", "男", "16", "优秀", "不及格"},
		{"2", "S002", "李四", "女", "16", "优秀", "不及格"},
	})
	profile, err := svc.AnalyzeUpload(buf, "三年级2班")
	if err != nil {
		t.Fatalf("AnalyzeUpload: %v", err)
	}
	if profile.GradesQuery != "3" {
		t.Fatalf("grades = %q", profile.GradesQuery)
	}
	if !strings.Contains(profile.TrainedWeaknesses, "耐力") {
		t.Fatalf("weaknesses = %q", profile.TrainedWeaknesses)
	}
	if !strings.Contains(profile.Description, "三年级2班体质监测核心薄弱维度") {
		t.Fatalf("description = %q", profile.Description)
	}
	if _, ok := profile.TestStats["800米跑"]; !ok {
		t.Fatalf("test stats = %+v", profile.TestStats)
	}
	if _, ok := profile.StudentGroups["耐力"]; !ok {
		t.Fatalf("student groups = %+v", profile.StudentGroups)
	}
}

func TestStatsText(t *testing.T) {
	svc := testService(t)
	records := []Record{
		{"50米跑等级": "优秀"},
		{"50米跑等级": "不及格"},
	}
	got := svc.StatsText(records)
	if !strings.Contains(got, "50米跑（速度）：优秀1人，良好0人，及格0人，不及格1人") {
		t.Fatalf("StatsText = %q", got)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	content := `
grade_mapping:
  14: "1"
allowed_weaknesses: [速度]
test_items:
  - name: 50米跑
    dimension: 速度
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.TopWeaknesses != 2 {
		t.Fatalf("expected default top_weaknesses 2, got %d", rules.TopWeaknesses)
	}
	if !rules.Allowed("速度") || rules.Allowed("力量") {
		t.Fatal("allowed weaknesses not applied")
	}
}

func TestLoadRulesRejectsUnknownDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.yaml")
	content := `
grade_mapping: {14: "1"}
allowed_weaknesses: [速度]
test_items:
  - name: 肺活量
    dimension: 机能
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected validation error for unknown dimension")
	}
}
