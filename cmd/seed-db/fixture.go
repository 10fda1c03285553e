package main

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// fixture is an ordered list of tables. Tables are inserted in file order,
// so referenced rows must come first.
type fixture struct {
	Tables []table `json:"tables"`
}

type table struct {
	Name string           `json:"name"`
	Rows []map[string]any `json:"rows"`
}

func parseFixture(data []byte) (*fixture, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var f fixture
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode fixture")
	}
	for _, t := range f.Tables {
		if t.Name == "" {
			return nil, errors.New("table without name")
		}
	}
	return &f, nil
}

// columns returns the sorted union of column names used by the table rows.
func (t table) columns() []string {
	var cols []string
	for _, row := range t.Rows {
		for col := range row {
			if !slices.Contains(cols, col) {
				cols = append(cols, col)
			}
		}
	}
	slices.Sort(cols)
	return cols
}

func (t table) hasID() bool {
	return slices.Contains(t.columns(), "id")
}

// insertSQL builds an idempotent multi-row insert for the table.
func (t table) insertSQL() (string, []any, error) {
	cols := t.columns()
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = pgx.Identifier{col}.Sanitize()
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("INSERT INTO ")
	b.WriteString(pgx.Identifier{t.Name}.Sanitize())
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")
	for i, row := range t.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, col := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			v, ok := row[col]
			if !ok {
				b.WriteString("DEFAULT")
				continue
			}
			arg, err := columnValue(v)
			if err != nil {
				return "", nil, errors.Wrapf(err, "%s row %d column %s", t.Name, i, col)
			}
			args = append(args, arg)
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(len(args)))
		}
		b.WriteByte(')')
	}
	b.WriteString(" ON CONFLICT DO NOTHING")
	return b.String(), args, nil
}

// columnValue converts a decoded JSON value into a pgx argument. Numbers with
// a fraction or exponent are NUMERIC, the rest are BIGINT. Objects are stored
// as JSONB.
func columnValue(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return decimal.NewFromString(v.String())
		}
		return v.Int64()
	case map[string]any:
		return v, nil
	case []any:
		return nil, errors.New("arrays are not supported")
	default:
		return v, nil
	}
}
