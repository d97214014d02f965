// package formatter renders user records as the CSV audit artifact and as plain text listings
package formatter

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
)

// DefaultExportPath is where the artifact is written when no path is given.
const DefaultExportPath = "exported_users.csv"

var csvHeader = []string{"Username", "Password", "Email"}

// ExportUsersCSV converts records to CSV with columns: Username, Password, Email.
//
// Rows follow batch order; a record without an email gets [models.EmailPlaceholder].
func ExportUsersCSV(records []models.UserRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range records {
		if err := writer.Write([]string{r.Username, r.Password, r.EmailOrPlaceholder()}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteUsersCSV writes the artifact to path, replacing any existing file.
//
// The file is created with mode 0600 since it holds passwords. Defaults to [DefaultExportPath].
func WriteUsersCSV(records []models.UserRecord, path string) (string, error) {
	if path == "" {
		path = DefaultExportPath
	}

	data, err := ExportUsersCSV(records)
	if err != nil {
		return path, fmt.Errorf("%w: %w", shared.ErrExport, err)
	}

	if err := writeFile(path, data); err != nil {
		return path, fmt.Errorf("%w: %w", shared.ErrExport, err)
	}

	return path, nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// ParseUsersCSV reads an artifact produced by [ExportUsersCSV].
//
// The placeholder email reads back as "no email".
func ParseUsersCSV(r io.Reader) ([]models.UserRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV", shared.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", shared.ErrInvalidInput, err)
	}
	for i, col := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")), col) {
			return nil, fmt.Errorf("%w: unexpected CSV header %q", shared.ErrInvalidInput, strings.Join(header, ","))
		}
	}

	records := []models.UserRecord{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read CSV record: %v", shared.ErrInvalidInput, err)
		}

		record := models.UserRecord{Username: row[0], Password: row[1]}
		if row[2] != models.EmailPlaceholder {
			record.Email = row[2]
			record.HasEmail = true
		}
		records = append(records, record)
	}

	return records, nil
}

// ReadUsersCSV opens and parses an artifact file.
func ReadUsersCSV(path string) ([]models.UserRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ParseUsersCSV(f)
}

// ExportUsersText renders a numbered listing of records; passwords are masked unless reveal is set.
func ExportUsersText(records []models.UserRecord, reveal bool) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Users: %d\n\n", len(records))
	for i, r := range records {
		password := shared.MaskSecret(r.Password)
		if reveal {
			password = r.Password
		}
		fmt.Fprintf(&buf, "%d. %s  password=%s  email=%s\n", i+1, r.Username, password, r.EmailOrPlaceholder())
	}

	return buf.Bytes()
}
