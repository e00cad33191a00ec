package analyzer

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"teachprep-server-go/logger"
	"teachprep-server-go/models"
)

// Sheet column names that are not test-item grade columns.
const (
	colGradeCode = "年级编号"
	colName      = "姓名"
	colGender    = "性别"
	colStudentID = "学生编号"
	colIndex     = "序号"

	gradeColSuffix = "等级"

	gradeExcellent = "优秀"
	gradeGood      = "良好"
	gradePass      = "及格"
	gradeFail      = "不及格"
)

// Record is one student row keyed by header name.
type Record map[string]string

// Service performs class fitness-data analysis.
type Service struct {
	rules RulesConfig
	log   *logger.Logger
}

func NewService(rules RulesConfig, log *logger.Logger) *Service {
	return &Service{
		rules: rules,
		log:   log.With("service", "Analyzer"),
	}
}

func (s *Service) Rules() RulesConfig { return s.rules }

// ReadRecords parses the first sheet of an Excel stream into header-keyed
// rows. The first row is the header.
func ReadRecords(r io.Reader) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("excel file does not contain any sheets")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("get rows from sheet %s: %w", sheetName, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("excel file has no data rows")
	}

	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := Record{}
		empty := true
		for i, col := range header {
			col = strings.TrimSpace(col)
			if col == "" || i >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[i])
			if value != "" {
				empty = false
			}
			record[col] = value
		}
		if !empty {
			records = append(records, record)
		}
	}
	return records, nil
}

// GradeQuery resolves the sheet's 年级编号 column into a grade number
// string, defaulting to "1" for unknown codes and empty sheets.
func (s *Service) GradeQuery(records []Record) string {
	if len(records) == 0 {
		return "1"
	}
	code, err := strconv.Atoi(records[0][colGradeCode])
	if err != nil {
		return "1"
	}
	if grade, ok := s.rules.GradeMapping[code]; ok {
		return grade
	}
	return "1"
}

// itemScore is the scored grade distribution of one test item.
type itemScore struct {
	dimension string
	item      string
	score     float64
	stats     models.ItemStats
	total     int
}

// scoreItems builds the weakness score per test item present in the data.
// Score = (100 - excellent%) + pass% + 2*fail%; higher is weaker.
func (s *Service) scoreItems(records []Record) []itemScore {
	var scores []itemScore
	for _, item := range s.rules.TestItems {
		gradeCol := item.Name + gradeColSuffix
		stats := models.ItemStats{Dimension: item.Dimension}
		total := 0
		for _, record := range records {
			switch record[gradeCol] {
			case gradeExcellent:
				stats.Excellent++
			case gradeGood:
				stats.Good++
			case gradePass:
				stats.Pass++
			case gradeFail:
				stats.Fail++
			default:
				continue
			}
			total++
		}
		if total == 0 {
			continue
		}
		excellentRate := float64(stats.Excellent) / float64(total) * 100
		passRate := float64(stats.Pass) / float64(total) * 100
		failRate := float64(stats.Fail) / float64(total) * 100
		scores = append(scores, itemScore{
			dimension: item.Dimension,
			item:      item.Name,
			score:     (100 - excellentRate) + passRate + failRate*2,
			stats:     stats,
			total:     total,
		})
	}
	return scores
}

// AnalyzeWeakness runs the rule-based weakness analysis and returns the
// weakest dimensions (worst first), their Chinese detail sentences, and the
// test item behind each dimension.
func (s *Service) AnalyzeWeakness(records []Record, className string) ([]string, map[string]string, map[string]string) {
	scores := s.scoreItems(records)

	// Keep the weakest item per dimension.
	byDimension := map[string]itemScore{}
	for _, sc := range scores {
		if prev, ok := byDimension[sc.dimension]; !ok || sc.score > prev.score {
			byDimension[sc.dimension] = sc
		}
	}

	ranked := make([]itemScore, 0, len(byDimension))
	for _, sc := range byDimension {
		ranked = append(ranked, sc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].dimension < ranked[j].dimension
	})
	if len(ranked) > s.rules.TopWeaknesses {
		ranked = ranked[:s.rules.TopWeaknesses]
	}

	var weaknesses []string
	details := map[string]string{}
	items := map[string]string{}
	for _, sc := range ranked {
		weaknesses = append(weaknesses, sc.dimension)
		items[sc.dimension] = sc.item
		details[sc.dimension] = s.detailSentence(className, sc)
	}
	return weaknesses, details, items
}

func (s *Service) detailSentence(className string, sc itemScore) string {
	total := float64(sc.total)
	var b strings.Builder
	fmt.Fprintf(&b, "从体测数据来看，%s是%s的薄弱项：%s", sc.dimension, className, sc.item)
	if sc.stats.Excellent == 0 {
		b.WriteString("无'优秀'等级学生，")
	} else {
		fmt.Fprintf(&b, "仅%d人（占比%.1f%%）达到'优秀'，", sc.stats.Excellent, float64(sc.stats.Excellent)/total*100)
	}
	if sc.stats.Good > 0 {
		fmt.Fprintf(&b, "%d人（占比%.1f%%）达到'良好'，", sc.stats.Good, float64(sc.stats.Good)/total*100)
	}
	fmt.Fprintf(&b, "%d人（占比%.1f%%）为'及格'", sc.stats.Pass, float64(sc.stats.Pass)/total*100)
	if sc.stats.Fail > 0 {
		fmt.Fprintf(&b, "，%d人（占比%.1f%%）为'不及格'", sc.stats.Fail, float64(sc.stats.Fail)/total*100)
	}
	fmt.Fprintf(&b, "，%s素质提升需求迫切。", sc.dimension)
	return b.String()
}

// TestStats returns the grade distribution per test item present in the data.
func (s *Service) TestStats(records []Record) map[string]models.ItemStats {
	stats := map[string]models.ItemStats{}
	for _, sc := range s.scoreItems(records) {
		stats[sc.item] = sc.stats
	}
	return stats
}

// StudentGroups groups students that failed a test item of each weakness
// dimension, carrying their sheet identity through to the profile.
func (s *Service) StudentGroups(records []Record, weaknesses []string, weaknessItems map[string]string) map[string]models.StudentGroup {
	itemsByDimension := map[string][]string{}
	for _, item := range s.rules.TestItems {
		itemsByDimension[item.Dimension] = append(itemsByDimension[item.Dimension], item.Name)
	}

	groups := map[string]models.StudentGroup{}
	for _, dimension := range weaknesses {
		var group models.StudentGroup
		seenItems := map[string]bool{}
		for i, record := range records {
			failed := false
			for _, item := range itemsByDimension[dimension] {
				if record[item+gradeColSuffix] == gradeFail {
					failed = true
					seenItems[item] = true
				}
			}
			if !failed {
				continue
			}
			name := record[colName]
			if name == "" && record[colIndex] != "" {
				name = "学生" + record[colIndex]
			}
			if name == "" {
				name = fmt.Sprintf("学生%d", i+1)
			}
			group.StudentDetails = append(group.StudentDetails, models.StudentDetail{
				StudentID: firstValue(record, colStudentID, "学号", "编号"),
				Name:      name,
				Gender:    record[colGender],
			})
		}
		group.Count = len(group.StudentDetails)
		for item := range seenItems {
			group.WeaknessItems = append(group.WeaknessItems, item)
		}
		sort.Strings(group.WeaknessItems)
		if group.Count > 0 {
			groups[dimension] = group
		}
	}
	if len(groups) == 0 {
		return nil
	}
	return groups
}

// BuildProfile assembles the persisted class profile from the rule-based
// analysis of the given records.
func (s *Service) BuildProfile(records []Record, className string) models.ClassProfile {
	weaknesses, details, items := s.AnalyzeWeakness(records, className)

	var descItems []string
	for _, w := range weaknesses {
		if item := items[w]; item != "" {
			descItems = append(descItems, fmt.Sprintf("%s（%s）", w, item))
		} else {
			descItems = append(descItems, w)
		}
	}
	description := className + "体质监测数据"
	if len(descItems) > 0 {
		description = className + "体质监测核心薄弱维度：" + strings.Join(descItems, "、")
	}

	return models.ClassProfile{
		GradesQuery:       s.GradeQuery(records),
		TrainedWeaknesses: strings.Join(weaknesses, "、"),
		Description:       description,
		WeaknessDetails:   details,
		StudentGroups:     s.StudentGroups(records, weaknesses, items),
		TestStats:         s.TestStats(records),
	}
}

// AnalyzeUpload parses and analyzes an uploaded Excel stream.
func (s *Service) AnalyzeUpload(r io.Reader, className string) (models.ClassProfile, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return models.ClassProfile{}, err
	}
	return s.BuildProfile(records, className), nil
}

// StatsText renders the per-item grade distribution the way the analysis
// prompt and the streaming progress output expect it.
func (s *Service) StatsText(records []Record) string {
	var b strings.Builder
	for _, sc := range s.scoreItems(records) {
		fmt.Fprintf(&b, "- %s（%s）：优秀%d人，良好%d人，及格%d人，不及格%d人\n",
			sc.item, sc.dimension, sc.stats.Excellent, sc.stats.Good, sc.stats.Pass, sc.stats.Fail)
	}
	return b.String()
}

func firstValue(record Record, keys ...string) string {
	for _, key := range keys {
		if v := record[key]; v != "" {
			return v
		}
	}
	return ""
}
