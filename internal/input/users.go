package input

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/chatbatch/pkg/core"
)

// Column candidates for user lists, in preference order.
var (
	UserNameColumns  = []string{"user-name", "user_name", "username", "name"}
	UserIDColumns    = []string{"user-id", "user_id", "userid"}
	UserSheetColumns = []string{"prompt_sheet", "sheet"}
)

// LoadUsers reads the user list at path. Rows without a name are skipped;
// a repeated name is an error because names key the export directories.
// A delimited file with no recognisable header is read as "<id>,<name>"
// lines.
func LoadUsers(path string) ([]core.User, error) {
	tables, err := ReadTables(path)
	if err != nil {
		return nil, err
	}

	var users []core.User
	seen := make(map[string]int)
	matched := false
	for _, t := range tables {
		nameIdx := column(t.Header, UserNameColumns)
		if nameIdx < 0 {
			continue
		}
		matched = true
		idIdx := column(t.Header, UserIDColumns)
		sheetIdx := column(t.Header, UserSheetColumns)

		for _, r := range t.Rows {
			name := r.Cell(nameIdx)
			if name == "" {
				continue
			}
			if prev, dup := seen[name]; dup {
				return nil, &ParseError{
					Path: path,
					Err:  fmt.Errorf("duplicate user name %q (rows %d and %d)", name, prev, r.Index),
				}
			}
			seen[name] = r.Index

			id := r.Cell(idIdx)
			if id == "" {
				id = name
			}
			users = append(users, core.User{
				Name:  name,
				ID:    id,
				Sheet: r.Cell(sheetIdx),
				Row:   rowMap(t.Header, r),
			})
		}
	}

	if !matched {
		if fallback, ok, err := headerlessUsers(path, tables); ok || err != nil {
			return fallback, err
		}
		return nil, &MissingColumnError{Path: path, Candidates: UserNameColumns}
	}
	return users, nil
}

// headerlessSeparators split the lines of a headerless user list.
const headerlessSeparators = ",\t;|"

// headerlessUsers reads a delimited file without a header, one user per
// line as "<id>,<name>"; tab, semicolon and pipe also separate. A line that
// names the id and name columns is skipped. Workbooks never qualify.
func headerlessUsers(path string, tables []Table) ([]core.User, bool, error) {
	if len(tables) != 1 || tables[0].Sheet != "" || tables[0].Header == nil {
		return nil, false, nil
	}
	t := tables[0]
	lines := append([]Row{{Index: t.HeaderIndex, Cells: t.Header}}, t.Rows...)

	var users []core.User
	seen := make(map[string]int)
	for _, r := range lines {
		var parts []string
		for _, c := range r.Cells {
			for _, p := range strings.FieldsFunc(c, func(r rune) bool {
				return strings.ContainsRune(headerlessSeparators, r)
			}) {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
		}
		if len(parts) < 2 {
			continue
		}
		id, name := parts[0], parts[1]
		if slices.Contains(UserIDColumns, strings.ToLower(id)) && slices.Contains(UserNameColumns, strings.ToLower(name)) {
			continue
		}
		if prev, dup := seen[name]; dup {
			return nil, true, &ParseError{
				Path: path,
				Err:  fmt.Errorf("duplicate user name %q (rows %d and %d)", name, prev, r.Index),
			}
		}
		seen[name] = r.Index

		users = append(users, core.User{
			Name: name,
			ID:   id,
			Row:  map[string]string{"user_id": id, "user_name": name},
		})
	}
	return users, len(users) > 0, nil
}

// GenerateUsers returns count synthetic users numbered from start:
// user-001/userid-001, user-002/userid-002, ...
func GenerateUsers(count, start int) []core.User {
	if count <= 0 {
		return nil
	}
	users := make([]core.User, 0, count)
	for i := start; i < start+count; i++ {
		name := fmt.Sprintf("user-%03d", i)
		id := fmt.Sprintf("userid-%03d", i)
		users = append(users, core.User{
			Name: name,
			ID:   id,
			Row:  map[string]string{"user_name": name, "user_id": id},
		})
	}
	return users
}
