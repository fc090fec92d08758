package moderation

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/internal/registration"
)

// ExportHeader is the first row of every export.
var ExportHeader = []string{"voucherCode", "game", "slotDate", "slotTime", "participantId", "createdAt", "status"}

// ErrEmptyExport is returned by ExportFile when there is nothing to export.
var ErrEmptyExport = errors.New("no registrations to export")

// Export writes every registration, ordered as in List, as CSV and returns the
// number of data rows written.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return writeCSV(w, list)
}

func writeCSV(w io.Writer, list []Entry) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, e := range list {
		row := []string{
			e.VoucherCode,
			e.Game,
			e.SlotDate,
			e.SlotTime,
			strconv.FormatInt(e.ParticipantID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Status,
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(list), nil
}

// ExportFile describes a written export.
type ExportFile struct {
	Path string
	// Name is the file name suggested to the recipient.
	Name string
	Rows int
}

// ExportFile writes the export into a fresh file under dir (os.TempDir when
// empty). The returned cleanup removes the file and must be called once the
// file was delivered; no copy is retained.
func (s *Service) ExportFile(ctx context.Context, dir string) (ExportFile, func(), error) {
	noop := func() {}
	list, err := s.List(ctx)
	if err != nil {
		return ExportFile{}, noop, err
	}
	if len(list) == 0 {
		return ExportFile{}, noop, ErrEmptyExport
	}
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, "fingames-export-"+uuid.NewString()+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return ExportFile{}, noop, fmt.Errorf("create export file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.SVCModeration.LogAttrs(ctx, slog.LevelWarn, "export.cleanup_failed",
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
		}
	}

	rows, err := writeCSV(f, list)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export file: %w", cerr)
	}
	if err != nil {
		cleanup()
		return ExportFile{}, noop, err
	}

	logger.SVCModeration.LogAttrs(ctx, slog.LevelInfo, "export.written",
		slog.Int("rows", rows),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
	return ExportFile{
		Path: path,
		Name: "registrations-" + s.now().Format("2006-01-02-1504") + ".csv",
		Rows: rows,
	}, cleanup, nil
}

// ParseExport reads an export produced by Export back into entries.
// Participant names are not exported and stay empty.
func ParseExport(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(ExportHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range ExportHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, header[i], col)
		}
	}

	var out []Entry
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pid, err := strconv.ParseInt(rec[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: participantId: %w", line, err)
		}
		created, err := time.Parse(time.RFC3339, rec[5])
		if err != nil {
			return nil, fmt.Errorf("line %d: createdAt: %w", line, err)
		}
		if rec[6] != registration.StatusActive && rec[6] != registration.StatusUsed {
			return nil, fmt.Errorf("line %d: unknown status %q", line, rec[6])
		}
		out = append(out, Entry{
			VoucherCode:   rec[0],
			Game:          rec[1],
			SlotDate:      rec[2],
			SlotTime:      rec[3],
			ParticipantID: pid,
			CreatedAt:     created,
			Status:        rec[6],
		})
	}
}
