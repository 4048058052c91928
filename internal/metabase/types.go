package metabase

// Database is one warehouse connection registered in the BI tool.
type Database struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Engine string  `json:"engine,omitempty"`
	Tables []Table `json:"tables,omitempty"`
}

// Table is a physical table with optional field metadata.
type Table struct {
	ID          int     `json:"id"`
	DBID        int     `json:"db_id"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Schema      string  `json:"schema,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

// Field describes one column of a table.
type Field struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	DisplayName  string  `json:"display_name"`
	BaseType     string  `json:"base_type"`
	SemanticType *string `json:"semantic_type"`
	TableID      int     `json:"table_id"`
}

// Column is a result-set column returned by the dataset endpoint.
type Column struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	BaseType    string `json:"base_type,omitempty"`
}

// NativeQuery is raw SQL run against the database.
type NativeQuery struct {
	Query string `json:"query"`
}

// DatasetRequest is the body of POST /dataset. Exactly one of Query or
// Native is set, matching Type.
type DatasetRequest struct {
	Database int          `json:"database"`
	Type     string       `json:"type"`
	Query    any          `json:"query,omitempty"`
	Native   *NativeQuery `json:"native,omitempty"`
}

// StructuredQuery builds a "query" dataset request.
func StructuredQuery(databaseID int, query any) DatasetRequest {
	return DatasetRequest{Database: databaseID, Type: "query", Query: query}
}

// NativeSQL builds a "native" dataset request.
func NativeSQL(databaseID int, sql string) DatasetRequest {
	return DatasetRequest{Database: databaseID, Type: "native", Native: &NativeQuery{Query: sql}}
}

// DatasetResult is the response of POST /dataset.
type DatasetResult struct {
	Data struct {
		Rows [][]any  `json:"rows"`
		Cols []Column `json:"cols"`
	} `json:"data"`
	RowCount int    `json:"row_count"`
	Status   string `json:"status"`
	Error    any    `json:"error,omitempty"`
}

// ColumnNames returns the result column names in order.
func (r *DatasetResult) ColumnNames() []string {
	names := make([]string, len(r.Data.Cols))
	for i, c := range r.Data.Cols {
		names[i] = c.Name
	}
	return names
}
