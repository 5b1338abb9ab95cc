package lead

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// exportColumn 描述导出文件中的一列
type exportColumn struct {
	key    string
	header string
	width  float64
	value  func(r *Row) string
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

var exportColumns = []exportColumn{
	{"id", "ID", 38, func(r *Row) string { return r.ID }},
	{"first_name", "First Name", 16, func(r *Row) string { return r.FirstName }},
	{"last_name", "Last Name", 16, func(r *Row) string { return r.LastName }},
	{"street", "Street", 22, func(r *Row) string { return optString(r.Street) }},
	{"city", "City", 16, func(r *Row) string { return optString(r.City) }},
	{"zip_code", "Zip", 12, func(r *Row) string { return r.ZipCode }},
	{"phone_number", "Phone", 16, func(r *Row) string { return r.PhoneNumber }},
	{"email_address", "Email", 24, func(r *Row) string { return r.EmailAddress }},
	{"follow_up_requested", "Follow Up", 12, func(r *Row) string { return strconv.FormatBool(r.FollowUpRequested) }},
	{"source", "Source", 14, func(r *Row) string { return r.Source }},
	{"status", "Status", 12, func(r *Row) string { return r.Status }},
	{"used", "Used", 10, func(r *Row) string { return strconv.FormatBool(r.Used) }},
	{"used_timestamp", "Used Timestamp", 24, func(r *Row) string { return optTime(r.UsedTimestamp) }},
	{"winner", "Winner", 10, func(r *Row) string { return strconv.FormatBool(r.Winner) }},
	{"winner_timestamp", "Winner Timestamp", 24, func(r *Row) string { return optTime(r.WinnerTimestamp) }},
	{"spin_id", "Spin ID", 38, func(r *Row) string { return optString(r.SpinID) }},
	{"created_at", "Created", 24, func(r *Row) string { return optTime(&r.CreatedAt) }},
}

// ExportFileName 生成形如 sparkle-leads-<slug>-<mode>.<ext> 的文件名
func ExportFileName(slug string, mode FilterMode, ext string) string {
	return fmt.Sprintf("sparkle-leads-%s-%s.%s", slug, strings.ToLower(string(mode)), ext)
}

// WriteCSV 以数据库列名作为表头写出CSV
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col.key
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(exportColumns))
	for i := range rows {
		for j, col := range exportColumns {
			record[j] = col.value(&rows[i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const exportSheet = "Leads"

// WriteXLSX 写出一个只有 Leads 工作表的xlsx文件
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return err
	}
	for i, col := range exportColumns {
		if err := sw.SetColWidth(i+1, i+1, col.width); err != nil {
			return err
		}
	}

	header := make([]any, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col.header
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i := range rows {
		cells := make([]any, len(exportColumns))
		for j, col := range exportColumns {
			cells[j] = col.value(&rows[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
