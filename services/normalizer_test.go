package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"licence-trends/models"
	"licence-trends/utils"
)

func newTestLogger() *utils.Logger { return utils.NewNopLogger() }

func TestCleanColumnNames(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"IssuedDate", "issueddate"},
		{"  Business Type ", "business_type"},
		{"Number of Employees (FTE)", "number_of_employees_fte"},
		{"LicenceRSN", "licencersn"},
		{"date-issued", "dateissued"},
		{"Geo Point 2D", "geo_point_2d"},
	}

	for _, tt := range tests {
		got := CleanColumnNames([]string{tt.raw})[0]
		if got != tt.want {
			t.Errorf("CleanColumnNames(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCleanColumnNamesIdempotent(t *testing.T) {
	raw := []string{" Issued Date ", "Business-Type", "STATUS", "folder_year", "Local Area!"}
	once := CleanColumnNames(raw)
	twice := CleanColumnNames(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second pass changed names (-once +twice):\n%s", diff)
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Expired", "closed"},
		{" CLOSED ", "closed"},
		{"Active", "active"},
		{"Pending", "pending"},
		{"Gone Out of Business", "gone out of business"},
	}

	for _, tt := range tests {
		got := NormalizeStatus(tt.raw)
		if got != tt.want {
			t.Errorf("NormalizeStatus(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizerTable(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := &models.RawTable{
		Source:  "1997_2012",
		Columns: []string{"LicenceRSN", "Business Type", "Status", "IssuedDate", "LocalArea"},
		Rows: []map[string]string{
			{"LicenceRSN": "1", "Business Type": " Restaurant ", "Status": "Expired", "IssuedDate": "1998-02-25", "LocalArea": "nan"},
			{"LicenceRSN": "2", "Business Type": "NaN", "Status": "Active", "IssuedDate": "nan"},
		},
	}

	got := n.Normalize(raw)

	wantCols := []string{"licencersn", "business_type", "status", "issueddate", "localarea"}
	if diff := cmp.Diff(wantCols, got.Columns); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	wantRows := []map[string]string{
		{"licencersn": "1", "business_type": " Restaurant ", "status": "closed", "issueddate": "1998-02-25"},
		{"licencersn": "2", "business_type": "NaN", "status": "active"},
	}
	if diff := cmp.Diff(wantRows, got.Rows); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}

	// The input table must not be modified.
	if raw.Columns[0] != "LicenceRSN" || raw.Rows[0]["Status"] != "Expired" {
		t.Error("Normalize mutated its input")
	}
}

func TestNormalizerBusinessTypeAndNan(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := &models.RawTable{
		Source:  "2013_2024",
		Columns: []string{"BusinessType", "BusinessSubType"},
		Rows: []map[string]string{
			{"BusinessType": "  Office ", "BusinessSubType": "NaN"},
		},
	}

	got := n.Normalize(raw)
	if got.Rows[0]["businesstype"] != "office" {
		t.Errorf("businesstype = %q; want %q", got.Rows[0]["businesstype"], "office")
	}
	if _, present := got.Rows[0]["businesssubtype"]; present {
		t.Error("businesssubtype 'NaN' should become a missing value")
	}
}

func TestNormalizerIdempotentOnTable(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := &models.RawTable{
		Source:  "current_2024_plus",
		Columns: []string{"Status", "BusinessType"},
		Rows:    []map[string]string{{"Status": "Expired", "BusinessType": " Retail "}},
	}

	once := n.Normalize(raw)
	twice := n.Normalize(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second normalization changed table (-once +twice):\n%s", diff)
	}
}

func TestNormalizerDropsCollidingColumns(t *testing.T) {
	n := NewNormalizer(newTestLogger())
	raw := &models.RawTable{
		Source:  "x",
		Columns: []string{"Status", "status "},
		Rows:    []map[string]string{{"Status": "Active", "status ": "Expired"}},
	}

	got := n.Normalize(raw)
	if len(got.Columns) != 1 || got.Rows[0]["status"] != "active" {
		t.Errorf("expected first column to win, got columns %v row %v", got.Columns, got.Rows[0])
	}
}
