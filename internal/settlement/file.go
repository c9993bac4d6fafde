package settlement

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/qrdine/internal/domain/txid"
)

// Line is one settlement export record:
// transaction_uuid,status,total_amount.
type Line struct {
	TransactionID string
	Status        string
	Amount        decimal.Decimal
}

// Complete reports whether the gateway settled the transaction.
func (l Line) Complete() bool {
	return strings.EqualFold(l.Status, "COMPLETE")
}

func parseLine(rec []string) (Line, error) {
	if len(rec) != 3 {
		return Line{}, errors.Errorf("want 3 fields, got %d", len(rec))
	}
	id := txid.Normalize(rec[0])
	if id == "" {
		return Line{}, errors.New("empty transaction id")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return Line{}, errors.Wrap(err, "amount")
	}
	return Line{TransactionID: id, Status: strings.TrimSpace(rec[1]), Amount: amount}, nil
}

// scanFile streams a gzip CSV export and calls fn per record. A header row
// is skipped. fn receives parse errors so the caller can count them; an
// error returned by fn stops the scan.
func scanFile(ctx context.Context, path string, fn func(Line, error) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return scan(ctx, gz, fn)
}

func scan(ctx context.Context, r io.Reader, fn func(Line, error) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			if err := fn(Line{}, err); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "read")
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "transaction_uuid") {
				continue
			}
		}
		if err := fn(parseLine(rec)); err != nil {
			return err
		}
	}
}
