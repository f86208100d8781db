package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string    `json:"top_message"`
	Code       Code      `json:"code,omitempty"`
	Class      Class     `json:"class,omitempty"`
	Retryable  bool      `json:"retryable"`
	Chain      []string  `json:"chain,omitempty"`
	Postgres   *PGDetail `json:"postgres,omitempty"`
}

// PGDetail carries the server-side fields of a postgres error, whichever
// driver raised it.
type PGDetail struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Dump flattens err for structured logs.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		meta := MetadataFor(d.Code)
		d.Class = meta.Class
		d.Retryable = meta.Retryable
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.Postgres = postgresDetail(err)
	return d
}

// Fields returns the dump as logger fields, leaving out empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_retryable": d.Retryable}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if d.Class != "" {
		fields["error_class"] = string(d.Class)
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.Postgres != nil {
		fields["pg_code"] = d.Postgres.Code
		if d.Postgres.Constraint != "" {
			fields["pg_constraint"] = d.Postgres.Constraint
		}
		if d.Postgres.Table != "" {
			fields["pg_table"] = d.Postgres.Table
		}
	}
	return fields
}

func postgresDetail(err error) *PGDetail {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}
