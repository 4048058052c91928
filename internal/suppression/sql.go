package suppression

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// History table columns.
const (
	colRefID        = "ref_id"
	colCampaignCode = "campaign_code"
	colExportDate   = "export_date"
)

const dateLayout = "2006-01-02"

// ErrUnsafeLiteral rejects strings that cannot be quoted portably. Snowflake
// and MySQL read a backslash inside a quoted string as an escape.
var ErrUnsafeLiteral = errors.New("suppression: backslash in string literal")

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func quoteIdent(s string) string {
	if plainIdent.MatchString(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// qualifiedName renders schema.table, quoting parts that need it.
func qualifiedName(schema, table string) string {
	if schema == "" {
		return quoteIdent(table)
	}
	return quoteIdent(schema) + "." + quoteIdent(table)
}

// suppressionQuery selects the distinct identifiers exported on or after
// since, or under campaignCode. A zero since or empty code drops that arm.
func suppressionQuery(table string, since time.Time, campaignCode string) (string, error) {
	cond := sq.Or{}
	if !since.IsZero() {
		cond = append(cond, sq.GtOrEq{colExportDate: since})
	}
	if campaignCode != "" {
		cond = append(cond, sq.Eq{colCampaignCode: campaignCode})
	}
	if len(cond) == 0 {
		return "", fmt.Errorf("suppression: no condition to apply")
	}

	var where sq.Sqlizer = cond
	if len(cond) == 1 {
		where = cond[0]
	}
	return inline(sq.Select(colRefID).Distinct().From(table).Where(where))
}

// insertQuery appends one history row per identifier.
func insertQuery(table, campaignCode string, exportDate time.Time, refIDs []string) (string, error) {
	ins := sq.Insert(table).Columns(colRefID, colCampaignCode, colExportDate)
	for _, id := range refIDs {
		ins = ins.Values(id, campaignCode, exportDate)
	}
	return inline(ins)
}

// inline renders a statement with its arguments substituted as SQL
// literals. Native queries go to the BI tool as a single SQL string, so
// there is no bind-parameter channel.
func inline(s sq.Sqlizer) (string, error) {
	query, args, err := s.ToSql()
	if err != nil {
		return "", fmt.Errorf("suppression: build sql: %w", err)
	}

	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		if n >= len(args) {
			return "", fmt.Errorf("suppression: placeholder %d has no argument", n+1)
		}
		lit, err := literal(args[n])
		if err != nil {
			return "", err
		}
		b.WriteString(lit)
		n++
	}
	if n != len(args) {
		return "", fmt.Errorf("suppression: %d arguments for %d placeholders", len(args), n)
	}
	return b.String(), nil
}

// safeLiteral reports whether s can be inlined as a string literal.
func safeLiteral(s string) bool {
	return !strings.ContainsRune(s, '\\')
}

func literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		if !safeLiteral(x) {
			return "", fmt.Errorf("%w: %q", ErrUnsafeLiteral, x)
		}
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case time.Time:
		return "'" + x.Format(dateLayout) + "'", nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("suppression: unsupported literal %T", v)
	}
}
