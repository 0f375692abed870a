package ml

type memTable struct {
	columns []string
	rows    [][]string
}

func (m *memTable) Columns() []string { return m.columns }

func (m *memTable) Len() int { return len(m.rows) }

func (m *memTable) Value(row int, column string) (string, bool) {
	for i, c := range m.columns {
		if c == column {
			v := m.rows[row][i]
			return v, v != ""
		}
	}
	return "", false
}
