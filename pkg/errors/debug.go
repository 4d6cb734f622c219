package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stripe/stripe-go/v84"
)

// LogFields flattens what a server-side log needs from err: the typed code,
// the wrap chain, and any postgres or payment gateway error found inside it.
// Empty values are left out.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}
	fields := map[string]any{}
	if te := As(err); te != nil {
		fields["error_code"] = string(te.Code())
	}
	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields["error_chain"] = chain

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	var gwErr *stripe.Error
	switch {
	case errors.As(err, &pgxErr):
		putNonEmpty(fields, "pg_code", pgxErr.Code)
		putNonEmpty(fields, "pg_table", pgxErr.TableName)
		putNonEmpty(fields, "pg_constraint", pgxErr.ConstraintName)
		putNonEmpty(fields, "pg_detail", pgxErr.Detail)
	case errors.As(err, &pqErr):
		putNonEmpty(fields, "pg_code", string(pqErr.Code))
		putNonEmpty(fields, "pg_table", pqErr.Table)
		putNonEmpty(fields, "pg_constraint", pqErr.Constraint)
		putNonEmpty(fields, "pg_detail", pqErr.Detail)
	case errors.As(err, &gwErr):
		putNonEmpty(fields, "gateway_error_type", string(gwErr.Type))
		putNonEmpty(fields, "gateway_error_code", string(gwErr.Code))
		putNonEmpty(fields, "gateway_param", gwErr.Param)
		if gwErr.HTTPStatusCode != 0 {
			fields["gateway_status"] = gwErr.HTTPStatusCode
		}
	}
	return fields
}

func putNonEmpty(fields map[string]any, key, value string) {
	if value != "" {
		fields[key] = value
	}
}
