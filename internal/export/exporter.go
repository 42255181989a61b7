package export

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"search-agent/internal/models"
)

// Header is the fixed CSV column order.
var Header = []string{"query", "clicks", "impressions", "ctr", "position"}

// SignatureHeader carries the HMAC of a CSV download.
const SignatureHeader = "X-Signature"

type Exporter struct {
	secret string
	logger *logrus.Logger
}

func NewExporter(secret string, logger *logrus.Logger) *Exporter {
	return &Exporter{
		secret: secret,
		logger: logger,
	}
}

// WriteCSV writes the header then one line per record, ctr with two decimals and position with one.
func (e *Exporter) WriteCSV(w io.Writer, records []models.NormalizedRecord) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, record := range records {
		line := []string{
			record.Query,
			strconv.FormatInt(record.Clicks, 10),
			strconv.FormatInt(record.Impressions, 10),
			strconv.FormatFloat(record.CTR, 'f', 2, 64),
			strconv.FormatFloat(record.Position, 'f', 1, 64),
		}
		if err := writer.Write(line); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// Encode renders records as CSV and signs the bytes. The signature is empty without a secret.
func (e *Exporter) Encode(records []models.NormalizedRecord) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := e.WriteCSV(&buf, records); err != nil {
		e.logger.WithError(err).Error("Failed to encode CSV export")
		return nil, "", err
	}

	body := buf.Bytes()
	signature := e.Sign(body)

	e.logger.WithFields(logrus.Fields{
		"records": len(records),
		"bytes":   len(body),
		"signed":  signature != "",
	}).Info("CSV export encoded")

	return body, signature, nil
}

// Sign returns "sha256=<hex hmac>" of body, or "" when no secret is configured.
func (e *Exporter) Sign(body []byte) string {
	if e.secret == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(e.secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign.
func (e *Exporter) Verify(body []byte, signature string) bool {
	expected := e.Sign(body)
	if expected == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ReadCSV parses a file produced by WriteCSV.
func ReadCSV(r io.Reader) ([]models.NormalizedRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}
	for i, column := range Header {
		if lines[0][i] != column {
			return nil, fmt.Errorf("unexpected csv header %q at column %d", lines[0][i], i)
		}
	}

	records := make([]models.NormalizedRecord, 0, len(lines)-1)
	for i, line := range lines[1:] {
		record, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+2, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func parseLine(line []string) (models.NormalizedRecord, error) {
	var record models.NormalizedRecord
	var err error

	record.Query = line[0]
	if record.Clicks, err = strconv.ParseInt(line[1], 10, 64); err != nil {
		return record, fmt.Errorf("invalid clicks: %w", err)
	}
	if record.Impressions, err = strconv.ParseInt(line[2], 10, 64); err != nil {
		return record, fmt.Errorf("invalid impressions: %w", err)
	}
	if record.CTR, err = strconv.ParseFloat(line[3], 64); err != nil {
		return record, fmt.Errorf("invalid ctr: %w", err)
	}
	if record.Position, err = strconv.ParseFloat(line[4], 64); err != nil {
		return record, fmt.Errorf("invalid position: %w", err)
	}
	return record, nil
}
